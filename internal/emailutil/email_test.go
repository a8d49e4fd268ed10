package emailutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "hanako@example.com", Normalize("  Hanako@Example.COM "))
	assert.Equal(t, "", Normalize("   "))
}

func TestValid(t *testing.T) {
	valid := []string{"hanako@example.com", "a@b.co", "first.last@sub.example.jp"}
	for _, email := range valid {
		assert.True(t, Valid(email), email)
	}

	invalid := []string{"", "hanako", "@example.com", "hanako@", "a@b@c.com", "hanako@localhost"}
	for _, email := range invalid {
		assert.False(t, Valid(email), email)
	}
}
