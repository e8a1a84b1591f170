package receipt

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receipt-items/internal/extraction"
)

func multipartUpload(field, filename string, data []byte) (*bytes.Buffer, string) {
	var b bytes.Buffer
	writer := multipart.NewWriter(&b)
	part, err := writer.CreateFormFile(field, filename)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(data)
	Expect(err).NotTo(HaveOccurred())
	Expect(writer.Close()).To(Succeed())
	return &b, writer.FormDataContentType()
}

func decodeBody(resp *http.Response) map[string]any {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	var out map[string]any
	Expect(json.Unmarshal(body, &out)).To(Succeed())
	return out
}

var _ = Describe("Server", func() {
	var (
		scanner     *mockScanner
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func(handler http.Handler) {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(handler.ServeHTTP)
	}

	BeforeEach(func() {
		scanner = newMockScanner()
		service = NewServiceWithDeps(scanner, newExtractor(), &mockIDGenerator{id: "scan-1"}, &mockTimeSource{now: time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)})
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		server = NewServerWithMux(service, auth, http.NewServeMux())
		setupServer(server)
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
			ghttpServer = nil
		}
	})

	Describe("handleHealth", func() {
		It("should return ok", func() {
			resp, err := http.Get(ghttpServer.URL() + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decodeBody(resp)).To(HaveKeyWithValue("status", "ok"))
		})
	})

	Describe("handleScan", func() {
		When("a receipt image is uploaded", func() {
			var out map[string]any

			JustBeforeEach(func() {
				body, contentType := multipartUpload("file", "IMG 0042 (copy).jpg", []byte("fake image data"))
				resp, err := http.Post(ghttpServer.URL()+"/api/scans", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
				Expect(resp.Header.Get("X-Scan-ID")).To(Equal("scan-1"))
				out = decodeBody(resp)
			})

			It("should return the extraction envelope under result", func() {
				result, ok := out["result"].(map[string]any)
				Expect(ok).To(BeTrue())
				Expect(result).To(HaveKeyWithValue("error", BeNil()))
				Expect(result).To(HaveKeyWithValue("date", "03/14/2024"))
				Expect(result["items"]).To(ConsistOf(
					map[string]any{"name": "Coffee", "price": 4.49, "quantity": 1.0},
					map[string]any{"name": "Bagel", "price": 2.5, "quantity": 1.0},
				))
			})

			It("should return the total and item summaries", func() {
				Expect(out).To(HaveKeyWithValue("total_cents", 699.0))
				Expect(out).To(HaveKeyWithValue("summaries", []any{"Coffee - $4.49", "Bagel - $2.50"}))
			})

			It("should return the scan metadata", func() {
				Expect(out).To(HaveKeyWithValue("id", "scan-1"))
				Expect(out).To(HaveKeyWithValue("filename", "IMG 0042 copy.jpg"))
				Expect(out).To(HaveKeyWithValue("content_type", "image/jpeg"))
				Expect(out).To(HaveKeyWithValue("scanned_at", "2024-03-14T10:00:00Z"))
			})
		})

		When("a text transcript is uploaded", func() {
			It("should extract without scanning", func() {
				body, contentType := multipartUpload("file", "receipt.txt", []byte("Muffin\n$3.25\n"))
				resp, err := http.Post(ghttpServer.URL()+"/api/scans", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(scanner.calls).To(BeZero())
				out := decodeBody(resp)
				Expect(out).To(HaveKeyWithValue("total_cents", 325.0))
				Expect(out["result"]).To(HaveKeyWithValue("lines", []any{"Muffin", "$3.25"}))
			})
		})

		When("the scanner fails", func() {
			BeforeEach(func() {
				scanner.scanErr = errors.New("model overloaded")
			})

			It("should return the error envelope", func() {
				body, contentType := multipartUpload("file", "receipt.png", []byte("fake image data"))
				resp, err := http.Post(ghttpServer.URL()+"/api/scans", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
				out := decodeBody(resp)
				Expect(out["error"]).To(ContainSubstring("model overloaded"))
				Expect(out["items"]).To(BeEmpty())
			})
		})

		When("the file field is missing", func() {
			It("should return status Bad Request", func() {
				body, contentType := multipartUpload("document", "receipt.png", []byte("x"))
				resp, err := http.Post(ghttpServer.URL()+"/api/scans", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decodeBody(resp)).To(HaveKeyWithValue("error", "no file provided"))
			})
		})

		When("the file is empty", func() {
			It("should return status Bad Request", func() {
				body, contentType := multipartUpload("file", "receipt.png", nil)
				resp, err := http.Post(ghttpServer.URL()+"/api/scans", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decodeBody(resp)).To(HaveKeyWithValue("error", ErrEmptyUpload.Error()))
			})
		})

		When("invalid multipart form", func() {
			It("should return status Bad Request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/scans", "multipart/form-data", bytes.NewBufferString("invalid"))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})
	})

	Describe("handleExtract", func() {
		When("raw lines are posted", func() {
			It("should pair names and prices", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/extract", "application/json",
					bytes.NewBufferString(`{"lines": ["Coffee", "$4.49", "TOTAL $4.49"]}`))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				out := decodeBody(resp)
				Expect(out["items"]).To(ConsistOf(map[string]any{"name": "Coffee", "price": 4.49, "quantity": 1.0}))
				Expect(out).To(HaveKeyWithValue("date", BeNil()))
			})
		})

		When("a structured document is posted", func() {
			It("should map the fields", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/extract", "application/json",
					bytes.NewBufferString(`{"menu": [{"nm": "Latte", "price": "5.25", "cnt": "2"}]}`))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				out := decodeBody(resp)
				Expect(out["items"]).To(ConsistOf(map[string]any{"name": "Latte", "price": 5.25, "quantity": 2.0}))
				Expect(out).To(HaveKey("raw"))
			})
		})

		When("the body is not JSON", func() {
			It("should return the error envelope", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/extract", "application/json", bytes.NewBufferString("Coffee 4.49"))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decodeBody(resp)["items"]).To(BeEmpty())
			})
		})
	})

	Describe("handleRules", func() {
		It("should return the effective rules", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/rules")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			defer resp.Body.Close()
			var cfg extraction.Config
			Expect(json.NewDecoder(resp.Body).Decode(&cfg)).To(Succeed())
			Expect(cfg).To(Equal(extraction.DefaultConfig()))
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
		})

		When("credentials are missing", func() {
			It("should return status Unauthorized", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/rules")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
				resp.Body.Close()
			})
		})

		When("credentials are wrong", func() {
			It("should return status Unauthorized", func() {
				req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/rules", nil)
				Expect(err).NotTo(HaveOccurred())
				req.SetBasicAuth("admin", "wrong")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				resp.Body.Close()
			})
		})

		When("credentials are valid", func() {
			It("should return status OK", func() {
				req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/rules", nil)
				Expect(err).NotTo(HaveOccurred())
				req.SetBasicAuth("admin", "secret")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})
		})

		When("the health check is requested", func() {
			It("should not require credentials", func() {
				resp, err := http.Get(ghttpServer.URL() + "/healthz")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})
		})
	})

	Describe("CORS", func() {
		JustBeforeEach(func() {
			setupServer(server.Handler())
		})

		It("should answer preflight requests", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/scans", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			resp.Body.Close()
		})
	})
})
