package receipt

import (
	"time"

	"github.com/zombor/receipt-items/internal/extraction"
)

// Scan is one receipt run through a scanner and the item extractor
type Scan struct {
	ID          string             `json:"id"`
	Filename    string             `json:"filename"`
	ContentType string             `json:"content_type"`
	Result      *extraction.Result `json:"result"`
	TotalCents  int                `json:"total_cents"` // Sum of item prices in cents
	Summaries   []string           `json:"summaries"`
	ScannedAt   time.Time          `json:"scanned_at"`
}
