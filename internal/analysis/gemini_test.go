package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewGeminiGenerator_RequiresAPIKey(t *testing.T) {
	g, err := NewGeminiGenerator(context.Background(), "")
	assert.Nil(t, g)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.EqualError(t, err, "gemini API key is required")
}
