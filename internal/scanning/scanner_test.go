package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"os/exec"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receipt-items/internal/extraction"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		img.Set(x, x, color.White)
	}
	return img
}

func pngBytes() []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, testImage())).To(Succeed())
	return buf.Bytes()
}

func jpegBytes() []byte {
	var buf bytes.Buffer
	Expect(jpeg.Encode(&buf, testImage(), nil)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("normalizeImage", func() {
	When("the image is already PNG", func() {
		It("returns it untouched", func() {
			data := pngBytes()
			out, err := normalizeImage(data, "image/png")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(data))
		})
	})

	When("the image is JPEG", func() {
		It("converts it to PNG", func() {
			out, err := normalizeImage(jpegBytes(), "image/jpeg")
			Expect(err).NotTo(HaveOccurred())
			_, format, err := image.Decode(bytes.NewReader(out))
			Expect(err).NotTo(HaveOccurred())
			Expect(format).To(Equal("png"))
		})
	})

	When("the content type is missing", func() {
		It("decodes by sniffing", func() {
			_, err := normalizeImage(jpegBytes(), "")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	When("the data is not an image", func() {
		It("returns an error", func() {
			_, err := normalizeImage([]byte("not an image"), "image/jpeg")
			Expect(err).To(HaveOccurred())
		})
	})

	It("recognises HEIC brands", func() {
		header := append([]byte{0, 0, 0, 24}, []byte("ftypheic")...)
		Expect(isHEICFormat(header)).To(BeTrue())
		Expect(isHEICFormat([]byte("short"))).To(BeFalse())
		Expect(isHEICMimeType("image/heif")).To(BeTrue())
	})
})

var _ = Describe("ContentTypeFor", func() {
	DescribeTable("picking a type",
		func(filename, declared, expected string) {
			Expect(ContentTypeFor(filename, declared)).To(Equal(expected))
		},
		Entry("declared type wins", "a.png", "image/jpeg", "image/jpeg"),
		Entry("declared type is normalised", "a", " Image/PNG; charset=binary", "image/png"),
		Entry("jpeg by extension", "a.JPG", "", "image/jpeg"),
		Entry("pdf by extension", "a.pdf", "application/octet-stream", "application/pdf"),
		Entry("heic by extension", "a.heic", "", "image/heic"),
		Entry("transcript by extension", "a.txt", "", "text/plain"),
		Entry("unknown", "a.bin", "", "application/octet-stream"),
	)
})

var _ = Describe("DecodeTranscript", func() {
	It("reads plain text as lines", func() {
		doc, err := DecodeTranscript([]byte("Coffee\n$4.49\n"), "text/plain")
		Expect(err).NotTo(HaveOccurred())
		Expect(doc).To(Equal(extraction.LineDocument{Lines: []string{"Coffee", "$4.49"}}))
	})

	It("reads JSON as an OCR envelope", func() {
		doc, err := DecodeTranscript([]byte(`{"menu": [{"nm": "Tea", "price": "2.00"}]}`), "application/json")
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.Source()).To(Equal(extraction.SourceFields))
	})

	It("knows which types are transcripts", func() {
		Expect(IsTranscript("text/plain")).To(BeTrue())
		Expect(IsTranscript("image/png")).To(BeFalse())
	})
})

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		scanner *Ollama
		doc     extraction.Document
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		scanner, err = NewOllama(server.URL()+"/", "llava")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		doc, err = scanner.ScanReceipt(context.Background(), pngBytes(), "image/png")
	})

	When("the model transcribes the receipt", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					var req ollamaChatRequest
					Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
					Expect(req.Model).To(Equal("llava"))
					Expect(req.Messages).To(HaveLen(2))
					Expect(req.Messages[1].Images).To(HaveLen(1))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{Role: "assistant", Content: "Coffee\n$4.49\nTOTAL $4.49"},
					Done:    true,
				}),
			))
		})

		It("returns the lines", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(doc).To(Equal(extraction.LineDocument{Lines: []string{"Coffee", "$4.49", "TOTAL $4.49"}}))
		})
	})

	When("the API fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("returns an error with the status", func() {
			Expect(err).To(MatchError(ContainSubstring("status 500")))
		})
	})

	When("the API reports an error in the body", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{Error: "model 'llava' not found"}))
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("not found")))
		})
	})
})

var _ = Describe("Command", func() {
	var (
		script  string
		scanner *Command
		doc     extraction.Document
		err     error
	)

	BeforeEach(func() {
		if _, lookErr := exec.LookPath("sh"); lookErr != nil {
			Skip("sh is not available")
		}
	})

	JustBeforeEach(func() {
		scanner = &Command{path: "sh", args: []string{"-c", script, "ocr"}, timeout: 10 * time.Second}
		doc, err = scanner.ScanReceipt(context.Background(), pngBytes(), "image/png")
	})

	When("the program prints lines", func() {
		BeforeEach(func() {
			script = `test -f "$1" && echo '{"lines": ["Coffee", "$4.49"], "error": null}'`
		})

		It("returns a line document", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(doc).To(Equal(extraction.LineDocument{Lines: []string{"Coffee", "$4.49"}}))
		})
	})

	When("the program prints a structured tree", func() {
		BeforeEach(func() {
			script = `echo '{"items": [], "raw": {"menu": [{"nm": "Latte", "price": "5.25"}]}}'`
		})

		It("returns a field document", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Source()).To(Equal(extraction.SourceFields))
		})
	})

	When("the program fails with an error envelope", func() {
		BeforeEach(func() {
			script = `echo '{"error": "model download failed", "items": []}'; exit 1`
		})

		It("returns the envelope error", func() {
			Expect(err).To(MatchError(ContainSubstring("model download failed")))
		})
	})

	When("the program fails without output", func() {
		BeforeEach(func() {
			script = `echo boom >&2; exit 3`
		})

		It("returns the stderr text", func() {
			Expect(err).To(MatchError(ContainSubstring("boom")))
		})
	})

	It("requires a command line", func() {
		_, err := NewCommand("   ", 0)
		Expect(err).To(HaveOccurred())
	})

	It("splits the command line", func() {
		c, err := NewCommand("python3 paddleocr_extract.py", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.path).To(Equal("python3"))
		Expect(c.args).To(Equal([]string{"paddleocr_extract.py"}))
	})
})
