package scanning

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/zombor/receipt-items/internal/extraction"
)

// Command implements the Scanner interface by running an external OCR
// program, such as a PaddleOCR or Donut wrapper script. The image path is
// passed as the last argument and the program prints a JSON envelope on
// stdout: {"lines": [...]} for line engines, a {"menu": [...]} tree (bare
// or under "raw") for structured models, and {"error": "..."} on failure.
type Command struct {
	path    string
	args    []string
	timeout time.Duration
}

// NewCommand parses a command line such as "python3 paddleocr_extract.py".
func NewCommand(commandLine string, timeout time.Duration) (*Command, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("ocr command is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Command{path: fields[0], args: fields[1:], timeout: timeout}, nil
}

// ScanReceipt writes the image to a temporary PNG and runs the program on it
func (c *Command) ScanReceipt(ctx context.Context, imageData []byte, contentType string) (extraction.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	pngData, err := normalizeImage(imageData, contentType)
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp("", "receipt-*.png")
	if err != nil {
		return nil, fmt.Errorf("creating temp image: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(pngData); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing temp image: %w", err)
	}

	args := append(append([]string{}, c.args...), f.Name())
	cmd := exec.CommandContext(ctx, c.path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	slog.Debug("OCR command finished",
		"command", c.path,
		"duration", time.Since(start),
		"stdout_bytes", stdout.Len(),
		"stderr", strings.TrimSpace(stderr.String()),
	)

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		if runErr != nil {
			return nil, fmt.Errorf("running ocr command: %w: %s", runErr, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("ocr command produced no output")
	}

	doc, err := decodeOCROutput(out)
	if err != nil {
		if runErr != nil {
			return nil, errors.Join(fmt.Errorf("running ocr command: %w", runErr), err)
		}
		return nil, err
	}
	if runErr != nil {
		slog.Warn("OCR command exited with an error but produced output", "error", runErr)
	}
	return doc, nil
}

// Close is a no-op; each scan runs its own process
func (c *Command) Close() error {
	return nil
}
