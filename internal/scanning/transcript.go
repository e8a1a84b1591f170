package scanning

import (
	"path/filepath"
	"strings"

	"github.com/zombor/receipt-items/internal/extraction"
)

// ContentTypeFor picks a MIME type for an upload, falling back to the file
// extension when the declared type is empty.
func ContentTypeFor(filename, declared string) string {
	contentType := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".txt":
		return "text/plain"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// IsTranscript reports whether contentType is OCR output rather than an
// image, so no scanner needs to run.
func IsTranscript(contentType string) bool {
	return contentType == "text/plain" || contentType == "application/json"
}

// DecodeTranscript turns an OCR transcript into a document. Plain text is
// one OCR line per text line; JSON is an OCR wrapper envelope or a
// structured model tree.
func DecodeTranscript(data []byte, contentType string) (extraction.Document, error) {
	if contentType == "text/plain" {
		return extraction.LineDocument{Lines: parseTranscript(string(data))}, nil
	}
	return decodeOCROutput(data)
}
