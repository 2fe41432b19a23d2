package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_OpenAI(t *testing.T) {
	c, err := NewClient(context.Background(), Config{Provider: "openai", Model: "gpt-4o-mini", APIKey: "key"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)
}

func TestNewClient_Claude(t *testing.T) {
	c, err := NewClient(context.Background(), Config{Provider: "claude", Model: "claude-sonnet-4-20250514", APIKey: "key"})
	require.NoError(t, err)
	assert.IsType(t, &ClaudeClient{}, c)
}

func TestNewClient_OllamaSharesOpenAIClient(t *testing.T) {
	c, err := NewClient(context.Background(), Config{Provider: "ollama", Model: "llama3"})
	require.NoError(t, err)
	require.IsType(t, &OpenAIClient{}, c)
	assert.Equal(t, "llama3", c.(*OpenAIClient).model)
}

func TestNewClient_ProviderCaseInsensitive(t *testing.T) {
	c, err := NewClient(context.Background(), Config{Provider: "OpenAI", Model: "gpt-4o-mini", APIKey: "key"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)
}

func TestNewClient_UnsupportedProvider(t *testing.T) {
	_, err := NewClient(context.Background(), Config{Provider: "mystery"})
	assert.Error(t, err)
}
