package extraction

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// priceRe finds a currency amount anywhere in a noisy token. A bare
	// fraction such as ".99" has no integer part.
	priceRe = regexp.MustCompile(`[$€£]?\s?(?:(\d{1,3}(?:,\d{3})+|\d+)(\.\d{1,2})?|(\.\d{1,2}))`)

	// amountRe is the strict two-fraction-digit amount used for document scans.
	amountRe = regexp.MustCompile(`\$?(\d+\.\d{2})`)

	standalonePriceRe = regexp.MustCompile(`^\$?(\d+\.\d{2})$`)
	sameLineRe        = regexp.MustCompile(`^(.+?)\s+\$?(\d+\.\d{2})\s*$`)
	leadingNoiseRe    = regexp.MustCompile(`^[\d\s]+`)
)

// ParsePrice returns the first decimal amount in s. Grouping commas are
// removed and at most two fraction digits are read. The boolean is false
// when s holds no amount.
func ParsePrice(s string) (float64, bool) {
	m := priceRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	num := "0" + m[3]
	if m[1] != "" {
		num = strings.ReplaceAll(m[1], ",", "") + m[2]
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// findAmounts returns every strict amount ("4.49", "$12.00") in line.
func findAmounts(line string) []float64 {
	matches := amountRe.FindAllStringSubmatch(line, -1)
	out := make([]float64, 0, len(matches))
	for _, m := range matches {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}
