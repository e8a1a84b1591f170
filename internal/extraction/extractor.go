package extraction

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Item is a purchased line item.
type Item struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Extractor turns OCR output into items. It holds no per-document state and
// is safe for concurrent use.
type Extractor struct {
	cfg        Config
	validator  *Validator
	classifier *Classifier
	logger     *slog.Logger
}

// New creates an Extractor for cfg.
func New(cfg Config, logger *slog.Logger) (*Extractor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	validator, err := NewValidator(cfg)
	if err != nil {
		return nil, fmt.Errorf("building validator: %w", err)
	}
	return &Extractor{
		cfg:        cfg,
		validator:  validator,
		classifier: newClassifier(validator.rules),
		logger:     logger,
	}, nil
}

// Config returns the rules the Extractor was built with.
func (e *Extractor) Config() Config {
	return e.cfg
}

// Extract dispatches doc to the extraction path for its shape.
func (e *Extractor) Extract(doc Document) *Result {
	switch d := doc.(type) {
	case LineDocument:
		return e.ExtractLines(d.Lines)
	case *LineDocument:
		return e.ExtractLines(d.Lines)
	case FieldDocument:
		return e.ExtractFields(d)
	case *FieldDocument:
		return e.ExtractFields(*d)
	default:
		e.logger.Warn("Unknown document type", "type", fmt.Sprintf("%T", doc))
		return &Result{Source: SourceFields, Items: []Item{}}
	}
}

// ExtractLines pairs names with prices over raw OCR lines and attaches the
// document text, lines and transaction date.
func (e *Extractor) ExtractLines(lines []string) *Result {
	docCtx := NewDocumentContext(lines)
	text := strings.Join(lines, "\n")
	date, _ := FindDate(text)

	return &Result{
		Source:    SourceLines,
		Items:     e.pairLines(lines, docCtx),
		Lines:     append([]string{}, lines...),
		Text:      text,
		Date:      date,
		MaxAmount: docCtx.MaxAmount,
	}
}

// ExtractFields validates entries a structured model has already paired.
func (e *Extractor) ExtractFields(doc FieldDocument) *Result {
	items := make([]Item, 0, len(doc.Entries))
	for i, entry := range doc.Entries {
		name := strings.TrimSpace(string(entry.Name))
		price, ok := ParsePrice(string(entry.Price))
		if !ok {
			price = 0
		}
		if err := e.validator.Validate(name, price); err != nil {
			e.logger.Debug("Dropping entry", "index", i, "name", name, "price", price, "reason", err)
			continue
		}
		items = append(items, Item{Name: name, Price: price, Quantity: parseQuantity(string(entry.Count))})
	}
	return &Result{Source: SourceFields, Items: items, Raw: doc.Raw}
}

// parseQuantity reads an integer count, defaulting to 1 when the value is
// missing, malformed or not positive.
func parseQuantity(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 1
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// JSON numbers such as 2.0 arrive as text; accept whole values.
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int(f)) {
			return 1
		}
		n = int(f)
	}
	if n <= 0 {
		return 1
	}
	return n
}
