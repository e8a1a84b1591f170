package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
)

// Source names the input shape a document arrived in.
type Source string

const (
	SourceLines  Source = "lines"
	SourceFields Source = "fields"
)

// Document is either a LineDocument or a FieldDocument.
type Document interface {
	Source() Source
}

// LineDocument is the ordered text lines from a line-detection OCR engine.
type LineDocument struct {
	Lines []string
}

func (LineDocument) Source() Source { return SourceLines }

// FieldDocument is the output of a structured vision model: entries the
// model has already paired, plus the decoded tree kept for diagnostics.
type FieldDocument struct {
	Entries []RawItemEntry
	Raw     any
}

func (FieldDocument) Source() Source { return SourceFields }

// FlexString holds a JSON string or number as text. Arrays collapse to
// their first non-empty element, objects and null to "".
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
	case '[':
		var list []FlexString
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		*f = ""
		for _, v := range list {
			if v != "" {
				*f = v
				break
			}
		}
	case '{':
		*f = ""
	default:
		*f = FlexString(b)
	}
	return nil
}

// RawItemEntry is one entry of a structured model's item list. Both the
// CORD keys (nm, cnt) and plain keys (name, count, quantity) are accepted.
type RawItemEntry struct {
	Name  FlexString `json:"nm"`
	Price FlexString `json:"price"`
	Count FlexString `json:"cnt"`
}

func (e *RawItemEntry) UnmarshalJSON(b []byte) error {
	var aux struct {
		Nm        FlexString `json:"nm"`
		Name      FlexString `json:"name"`
		Price     FlexString `json:"price"`
		UnitPrice FlexString `json:"unitprice"`
		Cnt       FlexString `json:"cnt"`
		Count     FlexString `json:"count"`
		Quantity  FlexString `json:"quantity"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	e.Name = firstNonEmpty(aux.Nm, aux.Name)
	e.Price = firstNonEmpty(aux.Price, aux.UnitPrice)
	e.Count = firstNonEmpty(aux.Cnt, aux.Count, aux.Quantity)
	return nil
}

func firstNonEmpty(vals ...FlexString) FlexString {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// DecodeFieldDocument decodes a structured model tree. The "menu" key may
// hold a list of entries or, for single-item receipts, one entry object.
// Trees without a menu fall back to an "items" key of the same shape.
func DecodeFieldDocument(data []byte) (FieldDocument, error) {
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return FieldDocument{}, fmt.Errorf("decoding structured output: %w", err)
	}

	var top struct {
		Menu  json.RawMessage `json:"menu"`
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(data, &top); err != nil {
		return FieldDocument{}, fmt.Errorf("decoding structured output: %w", err)
	}

	doc := FieldDocument{Raw: tree}
	menu := bytes.TrimSpace(top.Menu)
	if isAbsent(menu) {
		menu = bytes.TrimSpace(top.Items)
	}
	if isAbsent(menu) {
		return doc, nil
	}
	switch menu[0] {
	case '[':
		if err := json.Unmarshal(menu, &doc.Entries); err != nil {
			return FieldDocument{}, fmt.Errorf("decoding menu entries: %w", err)
		}
	case '{':
		var entry RawItemEntry
		if err := json.Unmarshal(menu, &entry); err != nil {
			return FieldDocument{}, fmt.Errorf("decoding menu entry: %w", err)
		}
		doc.Entries = []RawItemEntry{entry}
	default:
		return FieldDocument{}, fmt.Errorf("menu is neither a list nor an object")
	}
	return doc, nil
}

func isAbsent(raw []byte) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

var transactionDateRe = regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{2,4})|(\d{4}-\d{2}-\d{2})`)

// DocumentContext carries per-document facts used while pairing lines.
type DocumentContext struct {
	// MaxAmount is the largest amount seen anywhere in the document, 0 if none.
	MaxAmount float64
}

// NewDocumentContext scans every line for amounts.
func NewDocumentContext(lines []string) DocumentContext {
	var ctx DocumentContext
	for _, line := range lines {
		for _, v := range findAmounts(line) {
			if v > ctx.MaxAmount {
				ctx.MaxAmount = v
			}
		}
	}
	return ctx
}

// admits reports whether price may pair under the max amount bound. A zero
// MaxAmount admits every positive price.
func (d DocumentContext) admits(price float64, exclusive bool) bool {
	if price <= 0 {
		return false
	}
	if d.MaxAmount == 0 {
		return true
	}
	if exclusive {
		return price < d.MaxAmount
	}
	return price <= d.MaxAmount
}

// FindDate returns the first date-looking substring of text, verbatim.
func FindDate(text string) (string, bool) {
	m := transactionDateRe.FindString(text)
	return m, m != ""
}
