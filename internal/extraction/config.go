package extraction

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the tunable rules used to tell purchased items apart from
// receipt boilerplate. It is data, not behavior: every field can be
// overridden from a YAML rules file or from the command line.
type Config struct {
	// Denylist holds uppercase tokens that mark a line or name as boilerplate
	// (totals, payment, store address and so on). Matching is by substring.
	Denylist []string `yaml:"denylist" json:"denylist"`

	// MerchantTokens are merchant-specific words treated like Denylist
	// entries, e.g. the store name printed in the header.
	MerchantTokens []string `yaml:"merchant_tokens" json:"merchant_tokens"`

	// PriceCeiling is the absolute upper bound for a single item price.
	PriceCeiling float64 `yaml:"price_ceiling" json:"price_ceiling"`

	// DatePatterns reject item names that embed a date.
	DatePatterns []string `yaml:"date_patterns" json:"date_patterns"`

	// ReferencePrefixes reject names that start with a transaction or
	// reference marker followed later by a digit ("TRANS 0042", "#1234").
	ReferencePrefixes []string `yaml:"reference_prefixes" json:"reference_prefixes"`

	// DigitDensity is the share of digit characters above which a long name
	// is considered a barcode or ID.
	DigitDensity float64 `yaml:"digit_density" json:"digit_density"`

	// DigitDensityMinLength is the length a name must exceed before the
	// digit density check applies.
	DigitDensityMinLength int `yaml:"digit_density_min_length" json:"digit_density_min_length"`

	// ExcludeMaxAmount makes the document max amount an exclusive bound:
	// a price equal to the largest amount on the receipt never pairs.
	ExcludeMaxAmount bool `yaml:"exclude_max_amount" json:"exclude_max_amount"`
}

// DefaultConfig returns the rules tuned for US grocery and cafe receipts.
func DefaultConfig() Config {
	return Config{
		Denylist: []string{
			"TOTAL", "SUBTOTAL", "TAX", "CASH", "CHANGE", "DUE", "BALANCE",
			"AMOUNT", "VISA", "MASTERCARD", "DEBIT", "CREDIT", "CARD", "PAYMENT",
			"TENDER", "SURCHARGE", "TIP", "GRATUITY", "REFUND", "DISCOUNT",
			"RECEIPT", "TRANS", "STATION", "CASHIER", "ITEMS", "AVE", "STREET",
			"PHONE", "ADDRESS",
		},
		PriceCeiling:          100,
		DatePatterns:          []string{`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`},
		ReferencePrefixes:     []string{"TRANS", "RECEIPT", "STATION", "#"},
		DigitDensity:          0.9,
		DigitDensityMinLength: 15,
	}
}

// LoadConfig reads a YAML rules file on top of DefaultConfig. Keys missing
// from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading rules file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing rules file: %w", err)
	}
	return cfg, nil
}

// keywords returns the denylist and merchant tokens, uppercased, blanks removed.
func (c Config) keywords() []string {
	out := make([]string, 0, len(c.Denylist)+len(c.MerchantTokens))
	for _, list := range [][]string{c.Denylist, c.MerchantTokens} {
		for _, kw := range list {
			kw = strings.ToUpper(strings.TrimSpace(kw))
			if kw != "" {
				out = append(out, kw)
			}
		}
	}
	return out
}

// compiled is the ready-to-use form of a Config.
type compiled struct {
	keywords  []string
	dates     []*regexp.Regexp
	reference *regexp.Regexp
}

// containsKeyword reports whether upper holds any denylist or merchant token.
func (c *compiled) containsKeyword(upper string) bool {
	for _, kw := range c.keywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

func (c Config) compile() (*compiled, error) {
	if c.PriceCeiling < 0 {
		return nil, fmt.Errorf("price ceiling must not be negative: %v", c.PriceCeiling)
	}
	if c.DigitDensity < 0 || c.DigitDensity > 1 {
		return nil, fmt.Errorf("digit density must be within [0, 1]: %v", c.DigitDensity)
	}

	out := &compiled{keywords: c.keywords()}
	for _, p := range c.DatePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling date pattern %q: %w", p, err)
		}
		out.dates = append(out.dates, re)
	}

	prefixes := make([]string, 0, len(c.ReferencePrefixes))
	for _, p := range c.ReferencePrefixes {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			prefixes = append(prefixes, regexp.QuoteMeta(p))
		}
	}
	if len(prefixes) > 0 {
		out.reference = regexp.MustCompile(`^(?:` + strings.Join(prefixes, "|") + `).*\d`)
	}
	return out, nil
}
