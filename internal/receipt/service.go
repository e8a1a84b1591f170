package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/receipt-items/internal/extraction"
	"github.com/zombor/receipt-items/internal/scanning"
)

var (
	// ErrEmptyUpload is returned when a receipt has no content
	ErrEmptyUpload = errors.New("receipt file is empty")
	// ErrNoScanner is returned when an image arrives but no OCR backend is configured
	ErrNoScanner = errors.New("no scanner configured for image uploads")
)

// IDGenerator generates unique IDs for scans
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service runs receipts through an OCR scanner and the item extractor
type Service struct {
	scanner     scanning.Scanner
	extractor   *extraction.Extractor
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source.
// scanner may be nil when only transcripts are processed.
func NewService(scanner scanning.Scanner, extractor *extraction.Extractor) *Service {
	return &Service{
		scanner:     scanner,
		extractor:   extractor,
		idGenerator: &uuidGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(scanner scanning.Scanner, extractor *extraction.Extractor, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		scanner:     scanner,
		extractor:   extractor,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	filenameCharsRe = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	filenameSpaceRe = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	filename = filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	base = filenameCharsRe.ReplaceAllString(base, "")
	base = filenameSpaceRe.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	if base == "" {
		base = "receipt"
	}

	return base + ext
}

// ProcessReceipt scans a receipt upload and extracts its items. Plain text
// and JSON uploads are OCR transcripts and skip the scanner.
func (s *Service) ProcessReceipt(ctx context.Context, filename string, data []byte, contentType string) (*Scan, error) {
	if len(data) == 0 {
		return nil, ErrEmptyUpload
	}

	id := s.idGenerator.Generate()
	contentType = scanning.ContentTypeFor(filename, contentType)

	var (
		doc extraction.Document
		err error
	)
	switch {
	case scanning.IsTranscript(contentType):
		doc, err = scanning.DecodeTranscript(data, contentType)
		if err != nil {
			return nil, fmt.Errorf("decoding transcript: %w", err)
		}
	case s.scanner == nil:
		return nil, ErrNoScanner
	default:
		start := s.timeSource.Now()
		doc, err = s.scanner.ScanReceipt(ctx, data, contentType)
		if err != nil {
			slog.Error("Failed to scan receipt",
				"scan_id", id,
				"filename", filename,
				"content_type", contentType,
				"file_size", len(data),
				"error", err,
			)
			return nil, fmt.Errorf("scanning receipt: %w", err)
		}
		slog.Debug("Scanned receipt", "scan_id", id, "duration", s.timeSource.Now().Sub(start))
	}

	result := s.extractor.Extract(doc)
	scan := &Scan{
		ID:          id,
		Filename:    sanitizeFilename(filename),
		ContentType: contentType,
		Result:      result,
		TotalCents:  int(math.Round(result.Total() * 100)),
		Summaries:   result.Summaries(),
		ScannedAt:   s.timeSource.Now(),
	}

	slog.Info("Processed receipt",
		"scan_id", scan.ID,
		"filename", scan.Filename,
		"source", result.Source,
		"items", len(result.Items),
		"total_cents", scan.TotalCents,
	)
	return scan, nil
}

// Extract runs the extractor over an already decoded OCR document
func (s *Service) Extract(doc extraction.Document) *extraction.Result {
	return s.extractor.Extract(doc)
}

// Rules returns the extraction rules in effect
func (s *Service) Rules() extraction.Config {
	return s.extractor.Config()
}
