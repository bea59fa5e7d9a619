package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	embedding  []float32
	embedErr   error
	completion string
	genErr     error

	lastText        string
	lastPrompt      string
	lastMaxTokens   int
	lastTemperature float32
}

func (f *fakeAPI) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	f.lastText = text
	return f.embedding, f.embedErr
}

func (f *fakeAPI) CreateChatCompletion(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	f.lastPrompt = prompt
	f.lastMaxTokens = maxTokens
	f.lastTemperature = temperature
	return f.completion, f.genErr
}

func newTestClient(api CompletionAPI, dims int) *Client {
	return &Client{api: api, dimensions: dims}
}

func TestEmbed_Success(t *testing.T) {
	embedding := make([]float32, DefaultEmbeddingDimensions)
	api := &fakeAPI{embedding: embedding}
	client := newTestClient(api, DefaultEmbeddingDimensions)

	vec, err := client.Embed(context.Background(), "  some post text  ", EmbedModeDocument)
	require.NoError(t, err)
	assert.Equal(t, embedding, vec)
	assert.Equal(t, "some post text", api.lastText, "text is trimmed before embedding")
}

func TestEmbed_EmptyText(t *testing.T) {
	client := newTestClient(&fakeAPI{}, DefaultEmbeddingDimensions)

	_, err := client.Embed(context.Background(), "   ", EmbedModeQuery)
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestEmbed_WrongDimensions(t *testing.T) {
	api := &fakeAPI{embedding: make([]float32, 8)}
	client := newTestClient(api, DefaultEmbeddingDimensions)

	_, err := client.Embed(context.Background(), "text", EmbedModeDocument)
	assert.ErrorIs(t, err, ErrWrongDimensions)
}

func TestEmbed_APIError(t *testing.T) {
	api := &fakeAPI{embedErr: errors.New("rate limited")}
	client := newTestClient(api, DefaultEmbeddingDimensions)

	_, err := client.Embed(context.Background(), "text", EmbedModeQuery)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query")
}

func TestGenerate_PassesBounds(t *testing.T) {
	api := &fakeAPI{completion: "an answer"}
	client := newTestClient(api, DefaultEmbeddingDimensions)

	text, err := client.Generate(context.Background(), "prompt", 1536, 0.4)
	require.NoError(t, err)
	assert.Equal(t, "an answer", text)
	assert.Equal(t, 1536, api.lastMaxTokens)
	assert.InDelta(t, 0.4, api.lastTemperature, 0.001)
}

func TestGenerate_EmptyCandidateIsNotAnError(t *testing.T) {
	api := &fakeAPI{completion: ""}
	client := newTestClient(api, DefaultEmbeddingDimensions)

	text, err := client.Generate(context.Background(), "prompt", 100, 0.2)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestGenerate_EmptyPrompt(t *testing.T) {
	client := newTestClient(&fakeAPI{}, DefaultEmbeddingDimensions)

	_, err := client.Generate(context.Background(), " ", 100, 0.2)
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestNewClientFromEnv_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := NewClientFromEnv()
	assert.ErrorIs(t, err, ErrNoAPIKey)
}
