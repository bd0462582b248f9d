package naming

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/allanpk716/docx_mailmerge/internal/record"
)

func newTestResolver(max int) *Resolver {
	r := NewResolver(max)
	r.suffix = func() string { return "a1b2c3" }
	return r
}

func TestResolver_Resolve(t *testing.T) {
	r := newTestResolver(0)
	ali := record.FromMap(map[string]string{"name": "Ali", "program": "LT750"})
	noName := record.FromMap(map[string]string{"program": "LT750"})

	tests := []struct {
		name    string
		pattern string
		fields  *record.Record
		want    string
	}{
		{"simple pattern", "{name}_{program}", ali, "Ali_LT750"},
		{"double braces and case", "{{ NAME }} - {Program}", ali, "Ali - LT750"},
		{"illegal characters", "{name}/{program}:final?", ali, "Ali_LT750_final_"},
		{"literal pattern", "offer letter", ali, "offer letter"},
		{"partially resolved", "{name}_{unknown}", ali, "Ali_{unknown}"},
		{"nothing resolved falls back to random", "{unknown}", ali, "Offer_a1b2c3"},
		{"empty result falls back to random", "{program}", record.FromMap(map[string]string{"name": "Ali", "program": " "}), "Offer_a1b2c3"},
		{"no pattern with name", "", ali, "Offer_Ali"},
		{"no pattern without name", "  ", noName, "Offer_a1b2c3"},
		{"no pattern with unsafe name", "", record.FromMap(map[string]string{"name": "A/B"}), "Offer_A_B"},
		{"illegal only value", "{name}", record.FromMap(map[string]string{"name": "///"}), "_"},
		{"empty value falls back", "{name}", record.FromMap(map[string]string{"name": " "}), "Offer_a1b2c3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.pattern, "Offer", tt.fields))
		})
	}
}

func TestResolver_Truncate(t *testing.T) {
	r := newTestResolver(20)
	long := record.FromMap(map[string]string{"name": strings.Repeat("é", 50)})
	got := r.Resolve("{name}", "Offer", long)
	assert.Equal(t, 20, utf8.RuneCountInString(got))

	def := newTestResolver(0)
	got = def.Resolve("{name}", "Offer", record.FromMap(map[string]string{"name": strings.Repeat("x", 500)}))
	assert.Len(t, got, DefaultMaxLength)
}

func TestResolver_Sanitize(t *testing.T) {
	r := newTestResolver(0)
	assert.Equal(t, "a_b_c", r.Sanitize(` a\b*c `))
	assert.Equal(t, "x_y", r.Sanitize("x\n\ty"))
	assert.Equal(t, "", r.Sanitize("   "))
}

func TestRandomSuffix(t *testing.T) {
	s := RandomSuffix()
	assert.Len(t, s, 6)
	assert.NotEqual(t, s, RandomSuffix())
}

func TestResolver_NilFields(t *testing.T) {
	r := newTestResolver(0)
	assert.Equal(t, "Offer_a1b2c3", r.Resolve("{name}", "Offer", nil))
}
