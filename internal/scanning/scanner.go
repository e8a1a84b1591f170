package scanning

import (
	"context"

	"github.com/zombor/receipt-items/internal/extraction"
)

// Scanner reads a receipt image and returns its OCR output in one of the
// two shapes the extractor understands: raw text lines or model-paired
// fields.
type Scanner interface {
	// ScanReceipt runs OCR over a receipt image or PDF
	ScanReceipt(ctx context.Context, imageData []byte, contentType string) (extraction.Document, error)
	// Close closes the scanner and releases resources
	Close() error
}
