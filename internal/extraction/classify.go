package extraction

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// LineKind is the category a raw OCR line falls into.
type LineKind int

const (
	Blank LineKind = iota
	Noise
	StandalonePrice
	SameLineItem
	NameCandidate
	Other
)

func (k LineKind) String() string {
	switch k {
	case Blank:
		return "blank"
	case Noise:
		return "noise"
	case StandalonePrice:
		return "standalone_price"
	case SameLineItem:
		return "same_line_item"
	case NameCandidate:
		return "name_candidate"
	default:
		return "other"
	}
}

// ClassifiedLine is one line after classification. Name is set for
// SameLineItem and NameCandidate, Price for StandalonePrice and SameLineItem.
type ClassifiedLine struct {
	Kind  LineKind
	Text  string
	Name  string
	Price float64
}

// Classifier sorts raw lines into LineKinds.
type Classifier struct {
	rules *compiled
}

// NewClassifier builds a Classifier that treats cfg's denylist and merchant
// tokens as noise markers.
func NewClassifier(cfg Config) *Classifier {
	return newClassifier(&compiled{keywords: cfg.keywords()})
}

func newClassifier(rules *compiled) *Classifier {
	return &Classifier{rules: rules}
}

// Classify categorises a single line. Blank and keyword checks come before
// any shape matching, so a noise line never turns into a price or a name.
func (c *Classifier) Classify(line string) ClassifiedLine {
	text := strings.TrimSpace(line)
	out := ClassifiedLine{Text: text}

	if utf8.RuneCountInString(text) < 2 {
		out.Kind = Blank
		return out
	}

	if c.rules.containsKeyword(strings.ToUpper(text)) {
		out.Kind = Noise
		return out
	}

	if m := standalonePriceRe.FindStringSubmatch(text); m != nil {
		out.Kind = StandalonePrice
		out.Price, _ = strconv.ParseFloat(m[1], 64)
		return out
	}

	if m := sameLineRe.FindStringSubmatch(text); m != nil {
		name := strings.TrimSpace(leadingNoiseRe.ReplaceAllString(strings.TrimSpace(m[1]), ""))
		if name == "" {
			out.Kind = Other
			return out
		}
		out.Kind = SameLineItem
		out.Name = name
		out.Price, _ = strconv.ParseFloat(m[2], 64)
		return out
	}

	letters, digits := countLettersDigits(text)
	if letters >= 2 && letters > digits {
		out.Kind = NameCandidate
		out.Name = text
		return out
	}

	out.Kind = Other
	return out
}

func countLettersDigits(s string) (letters, digits int) {
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsDigit(r):
			digits++
		}
	}
	return letters, digits
}
