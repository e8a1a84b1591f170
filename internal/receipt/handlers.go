package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/zombor/receipt-items/internal/extraction"
	"github.com/zombor/receipt-items/internal/scanning"
)

// maxUploadSize bounds receipt uploads; phone photos run large
const maxUploadSize = int64(50 << 20)

var errTooLarge = errors.New("file is too large, maximum size is 50MB")

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Expose-Headers", "X-Scan-ID")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON writes v as a JSON response
func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes the error envelope
func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, extraction.NewErrorEnvelope(err))
}

// handleHealth reports that the process is serving
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleScan scans an uploaded receipt and returns the scan record with the
// extraction envelope under "result"
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, errTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Errorf("parsing form: %w", err))
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		if errors.Is(err, http.ErrMissingFile) {
			writeError(w, http.StatusBadRequest, errors.New("no file provided"))
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Errorf("reading form file: %w", err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, fmt.Errorf("reading file: %w", err))
		return
	}

	contentType := scanning.ContentTypeFor(header.Filename, header.Header.Get("Content-Type"))
	scan, err := s.service.ProcessReceipt(r.Context(), header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error processing receipt", "filename", header.Filename, "error", err)
		code := http.StatusBadGateway
		if errors.Is(err, ErrEmptyUpload) || errors.Is(err, ErrNoScanner) || scanning.IsTranscript(contentType) {
			code = http.StatusBadRequest
		}
		writeError(w, code, err)
		return
	}

	w.Header().Set("X-Scan-ID", scan.ID)
	writeJSON(w, http.StatusOK, scan)
}

// handleExtract runs the extractor over an OCR envelope posted as JSON
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("reading body: %w", err))
		return
	}

	doc, err := scanning.DecodeTranscript(body, "application/json")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusOK, s.service.Extract(doc))
}

// handleRules returns the extraction rules in effect
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Rules())
}
