package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allanpk716/docx_mailmerge/internal/record"
)

func testFields() *record.Record {
	return record.FromMap(map[string]string{
		"name":    "Ali bin Abu",
		"program": "LT750",
		"note":    "{name}",
	})
}

func TestNewPlaceholderMatcher(t *testing.T) {
	assert.NotNil(t, NewPlaceholderMatcher())
}

func TestFindTokens(t *testing.T) {
	tokens := FindTokens("Dear {{ Name }}, {program} and {} and {{x}")
	require.Len(t, tokens, 3)

	assert.Equal(t, "{{ Name }}", tokens[0].Token)
	assert.Equal(t, "Name", tokens[0].Name)
	assert.True(t, tokens[0].Double)

	assert.Equal(t, "program", tokens[1].Name)
	assert.False(t, tokens[1].Double)

	assert.Equal(t, "{x}", tokens[2].Token)
}

func TestPlaceholderMatcher_FindMatches(t *testing.T) {
	m := NewPlaceholderMatcher()

	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{name: "single match", text: "Hello {name}, welcome!", expected: 1},
		{name: "multiple matches", text: "{name} is in {program}", expected: 2},
		{name: "no matches", text: "This is a normal text", expected: 0},
		{name: "duplicate matches", text: "{name} and {{name}} again", expected: 2},
		{name: "unknown field", text: "{unknown} stays", expected: 0},
		{name: "partial braces", text: "{name and name} are not valid", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, m.FindMatches(tt.text, testFields()), tt.expected)
		})
	}
}

func TestPlaceholderMatcher_Descending(t *testing.T) {
	m := NewPlaceholderMatcher()
	matches := m.FindMatches("{name} {program} {name}", testFields())
	require.Len(t, matches, 3)
	assert.True(t, matches[0].StartPos > matches[1].StartPos)
	assert.True(t, matches[1].StartPos > matches[2].StartPos)
}

func TestPlaceholderMatcher_Replace(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{name: "single replacement", text: "Hello {name}!", expected: "Hello Ali bin Abu!"},
		{name: "double braces leave no stray brace", text: "Hello {{name}}!", expected: "Hello Ali bin Abu!"},
		{name: "upper case token", text: "NAME: {NAME}", expected: "NAME: ALI BIN ABU"},
		{name: "double upper is not upper-cased", text: "{{NAME}}", expected: "Ali bin Abu"},
		{name: "mixed case resolves", text: "{Name}", expected: "Ali bin Abu"},
		{name: "several in one text", text: "{name}/{program}/{NAME}", expected: "Ali bin Abu/LT750/ALI BIN ABU"},
		{name: "unknown stays literal", text: "{name} {missing}", expected: "Ali bin Abu {missing}"},
		{name: "values are not rescanned", text: "{note}", expected: "{name}"},
		{name: "whitespace inside braces", text: "{ program }", expected: "LT750"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, replace(tt.text, testFields()))
		})
	}
}

func TestPlaceholderMatcher_UnicodeUpper(t *testing.T) {
	fields := record.FromMap(map[string]string{"city": "straße"})
	assert.Equal(t, "STRASSE", replace("{CITY}", fields))
}

func replace(text string, fields *record.Record) string {
	m := NewPlaceholderMatcher()
	return m.ReplaceMatches(text, m.FindMatches(text, fields))
}
