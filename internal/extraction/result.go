package extraction

import (
	"encoding/json"
	"fmt"
	"math"
)

// Result is the outcome of extracting one document.
type Result struct {
	Source Source
	Items  []Item

	// Raw-line path only.
	Lines []string
	Text  string
	Date  string // "" when no date was found

	// Structured path only: the decoded model tree, or the raw text when
	// the model output could not be decoded.
	Raw any

	MaxAmount float64
}

// Total is the sum of price times quantity, rounded to cents.
func (r Result) Total() float64 {
	var cents int64
	for _, it := range r.Items {
		cents += int64(math.Round(it.Price*100)) * int64(it.Quantity)
	}
	return float64(cents) / 100
}

// Summaries renders each item as "Name - $X.XX" for display.
func (r Result) Summaries() []string {
	out := make([]string, 0, len(r.Items))
	for _, it := range r.Items {
		s := fmt.Sprintf("%s - $%.2f", it.Name, it.Price)
		if it.Quantity > 1 {
			s = fmt.Sprintf("%s x%d", s, it.Quantity)
		}
		out = append(out, s)
	}
	return out
}

type lineOutput struct {
	Text  string   `json:"text"`
	Lines []string `json:"lines"`
	Items []Item   `json:"items"`
	Date  *string  `json:"date"`
	Error *string  `json:"error"`
}

type fieldOutput struct {
	Items []Item  `json:"items"`
	Raw   any     `json:"raw"`
	Error *string `json:"error"`
}

// MarshalJSON writes the success envelope for the result's input shape.
// Items is always an array and error is always null.
func (r Result) MarshalJSON() ([]byte, error) {
	items := r.Items
	if items == nil {
		items = []Item{}
	}

	if r.Source == SourceLines {
		out := lineOutput{Text: r.Text, Lines: r.Lines, Items: items}
		if out.Lines == nil {
			out.Lines = []string{}
		}
		if r.Date != "" {
			date := r.Date
			out.Date = &date
		}
		return json.Marshal(out)
	}
	return json.Marshal(fieldOutput{Items: items, Raw: r.Raw})
}

// ErrorEnvelope is the failure shape: an error message and an empty item list.
type ErrorEnvelope struct {
	Error string `json:"error"`
	Items []Item `json:"items"`
}

// NewErrorEnvelope wraps err for output.
func NewErrorEnvelope(err error) ErrorEnvelope {
	return ErrorEnvelope{Error: err.Error(), Items: []Item{}}
}
