package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseJSON_SurroundingText(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	response := "Sure! Here is the JSON you asked for:\n```json\n{\"name\": \"Alice\"}\n```\nLet me know if you need anything else."

	result, err := ParseJSON[payload](response)
	assert.NoError(t, err)
	assert.Equal(t, "Alice", result.Name)
}

func TestParseJSON_NoObject(t *testing.T) {
	type payload struct{}

	_, err := ParseJSON[payload]("no json here at all")
	assert.Error(t, err)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "jane smith", NormalizeName("  Jane   Smith. "))
	assert.Equal(t, "atlas", NormalizeName("Atlas"))
	assert.Equal(t, "j. smith", NormalizeName("J. Smith"))
	assert.Equal(t, "acme corp", NormalizeName("ACME\tCorp,"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	assert.Equal(t, "abcdef", Truncate("abcdef", 0))
	// Deterministic on rune boundaries, not bytes.
	assert.Equal(t, "hél", Truncate("héllo", 3))
}
