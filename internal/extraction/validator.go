package extraction

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rejection reasons returned by Validator.Validate.
var (
	ErrEmptyName        = errors.New("empty name")
	ErrNonPositivePrice = errors.New("price is not positive")
	ErrAboveCeiling     = errors.New("price above ceiling")
	ErrDenylisted       = errors.New("name contains a denylisted token")
	ErrDateLike         = errors.New("name contains a date")
	ErrReferenceMarker  = errors.New("name starts with a reference marker")
	ErrDigitDense       = errors.New("name is mostly digits")
)

// Validator is the single predicate set every candidate item must pass,
// whichever extraction path produced it.
type Validator struct {
	cfg   Config
	rules *compiled
}

// NewValidator compiles cfg into a Validator.
func NewValidator(cfg Config) (*Validator, error) {
	rules, err := cfg.compile()
	if err != nil {
		return nil, err
	}
	return &Validator{cfg: cfg, rules: rules}, nil
}

// Validate returns nil when (name, price) is acceptable as an item, or the
// first rule it breaks.
func (v *Validator) Validate(name string, price float64) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if price <= 0 {
		return ErrNonPositivePrice
	}
	if v.cfg.PriceCeiling > 0 && price > v.cfg.PriceCeiling {
		return ErrAboveCeiling
	}

	upper := strings.ToUpper(name)
	if v.rules.containsKeyword(upper) {
		return ErrDenylisted
	}
	for _, re := range v.rules.dates {
		if re.MatchString(name) {
			return ErrDateLike
		}
	}
	if v.rules.reference != nil && v.rules.reference.MatchString(upper) {
		return ErrReferenceMarker
	}
	if v.digitDense(name) {
		return ErrDigitDense
	}
	return nil
}

func (v *Validator) digitDense(name string) bool {
	n := utf8.RuneCountInString(name)
	if n <= v.cfg.DigitDensityMinLength {
		return false
	}
	digits := 0
	for _, r := range name {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return float64(digits)/float64(n) > v.cfg.DigitDensity
}
