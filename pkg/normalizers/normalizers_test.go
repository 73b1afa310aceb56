package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizers(t *testing.T) {
	tests := []struct {
		name string
		fn   Normalizer
		in   string
		want string
	}{
		{"phone strips formatting", NormalizePhone, "(555) 010-0100", "5550100100"},
		{"phone drops country code", NormalizePhone, "+1 555 010 0100", "5550100100"},
		{"phone keeps short numbers", NormalizePhone, "555-0100", "5550100"},
		{"email", NormalizeEmail, "  Ray@Example.COM ", "ray@example.com"},
		{"email username", EmailUsername, "Ray.Bell@example.com", "ray.bell"},
		{"email username without at", EmailUsername, "raybell", "raybell"},
		{"first name folds accents", NormalizeFirstName, "  José   María ", "jose maria"},
		{"name drops suffix", NormalizeName, "Bell Jr.", "bell"},
		{"name drops punctuation", NormalizeName, "O'Brien-Smith", "obriensmith"},
		{"date us layout", NormalizeDate, "7/10/2007", "2007-07-10"},
		{"date iso timestamp", NormalizeDate, "2007-07-10T00:00:00Z", "2007-07-10"},
		{"date unknown layout passes through", NormalizeDate, " July 10th ", "July 10th"},
		{"gender short", NormalizeGender, "F", "female"},
		{"gender unknown", NormalizeGender, "Nonbinary", "nonbinary"},
		{"id", NormalizeID, "123-45 6789", "123456789"},
		{"address", NormalizeAddress, "12 North Main Street.", "12 n main st"},
		{"digits only", DigitsOnly, "a1b2c3", "123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fn(tt.in))
		})
	}
}

func TestApplyChain(t *testing.T) {
	assert.Equal(t, "hello", ApplyChain("  HELLO ", "trim", "lowercase"))
	assert.Equal(t, "As-Is", Apply("As-Is", "does-not-exist"))

	Register("reverse", func(s string) string {
		r := []rune(s)
		for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
			r[i], r[j] = r[j], r[i]
		}
		return string(r)
	})
	fn, ok := Get("reverse")
	assert.True(t, ok)
	assert.Equal(t, "cba", fn("abc"))
}
