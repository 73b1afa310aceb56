// Package normalizers provides field normalization functions used before records are compared
package normalizers

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("fold", FoldAccents)
	Register("nphone", NormalizePhone)
	Register("nemail", NormalizeEmail)
	Register("nname", NormalizeName)
	Register("nfirst", NormalizeFirstName)
	Register("ndate", NormalizeDate)
	Register("ngender", NormalizeGender)
	Register("nid", NormalizeID)
	Register("naddress", NormalizeAddress)
	Register("digits_only", DigitsOnly)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// FoldAccents strips combining marks so "José" and "Jose" compare equal
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizePhone keeps digits and drops a leading US country code
func NormalizePhone(s string) string {
	digits := DigitsOnly(s)
	if len(digits) == 11 && digits[0] == '1' {
		return digits[1:]
	}
	return digits
}

// NormalizeEmail normalizes an email address (lowercase, trim)
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// EmailUsername returns the part of a normalized email before '@'
func EmailUsername(s string) string {
	s = NormalizeEmail(s)
	if i := strings.IndexByte(s, '@'); i >= 0 {
		return s[:i]
	}
	return s
}

// NormalizeFirstName lowercases, folds accents and collapses whitespace.
// Punctuation is kept so that edit distance still sees it.
func NormalizeFirstName(s string) string {
	s = strings.ToLower(FoldAccents(s))
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeName normalizes a person's name for equality checks
// - Lowercase, accents folded
// - Remove common suffixes (Jr., Sr., III, etc.)
// - Remove punctuation and extra whitespace
func NormalizeName(s string) string {
	s = strings.ToLower(FoldAccents(strings.TrimSpace(s)))

	suffixes := []string{" jr.", " jr", " sr.", " sr", " iii", " ii", " iv"}
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			s = s[:len(s)-len(suffix)]
		}
	}

	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
			prevSpace = false
		} else if unicode.IsSpace(r) {
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimSpace(result.String())
}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// NormalizeDate returns an ISO YYYY-MM-DD date, or the trimmed input when no layout matches
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

// NormalizeGender folds the common spellings onto "male" and "female"
func NormalizeGender(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "m", "male", "man":
		return "male"
	case "f", "female", "woman":
		return "female"
	}
	return s
}

// NormalizeID lowercases a government id and drops spaces and dashes
func NormalizeID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "-", "").Replace(s)
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

var (
	spaceRe      = regexp.MustCompile(`\s+`)
	streetTokens = map[string]string{
		"street":    "st",
		"avenue":    "ave",
		"boulevard": "blvd",
		"drive":     "dr",
		"road":      "rd",
		"lane":      "ln",
		"court":     "ct",
		"highway":   "hwy",
		"place":     "pl",
		"north":     "n",
		"south":     "s",
		"east":      "e",
		"west":      "w",
	}
)

// NormalizeAddress lowercases a street line and abbreviates common words
func NormalizeAddress(s string) string {
	s = strings.ToLower(FoldAccents(s))
	s = strings.NewReplacer(".", "", ",", " ").Replace(s)
	words := strings.Fields(spaceRe.ReplaceAllString(s, " "))
	for i, w := range words {
		if abbr, ok := streetTokens[w]; ok {
			words[i] = abbr
		}
	}
	return strings.Join(words, " ")
}
