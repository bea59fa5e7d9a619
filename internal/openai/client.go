package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.AdaEmbeddingV2
	// DefaultEmbeddingDimensions is the expected dimension of embeddings from ada-002
	DefaultEmbeddingDimensions = 1536
	// DefaultChatModel is the model used for grounded answer generation
	DefaultChatModel = openai.GPT4oMini
)

// EmbedMode distinguishes document embeddings from query embeddings. OpenAI
// embedding models take no task type, so both modes hit the same model here,
// but the contract keeps the distinction for backends that differentiate.
type EmbedMode string

const (
	EmbedModeDocument EmbedMode = "document"
	EmbedModeQuery    EmbedMode = "query"
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when embedding has wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrNoAPIKey is returned when OpenAI API key is not set
	ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")
)

// CompletionAPI defines the vendor surface the client consumes.
type CompletionAPI interface {
	CreateEmbeddings(ctx context.Context, text string) ([]float32, error)
	CreateChatCompletion(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error)
}

// Client wraps the OpenAI API for embedding and generation.
type Client struct {
	api        CompletionAPI
	dimensions int
}

type openAIAdapter struct {
	client         *openai.Client
	embeddingModel openai.EmbeddingModel
	chatModel      string
}

func newOpenAIAdapter(apiKey, baseURL string, embeddingModel openai.EmbeddingModel, chatModel string) *openAIAdapter {
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}
	if chatModel == "" {
		chatModel = DefaultChatModel
	}

	conf := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		conf.BaseURL = baseURL
	}

	return &openAIAdapter{
		client:         openai.NewClientWithConfig(conf),
		embeddingModel: embeddingModel,
		chatModel:      chatModel,
	}
}

// CreateEmbeddings calls the OpenAI API to create embeddings
func (a *openAIAdapter) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: a.embeddingModel,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}

	return resp.Data[0].Embedding, nil
}

// CreateChatCompletion calls the OpenAI chat API and returns the first
// candidate's text. A response with no usable candidate yields an empty
// string without an error, which the caller treats as a retry signal.
func (a *openAIAdapter) CreateChatCompletion(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.chatModel,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}

	for _, choice := range resp.Choices {
		if text := strings.TrimSpace(choice.Message.Content); text != "" {
			return text, nil
		}
	}
	return "", nil
}

type Config struct {
	APIKey string
	// BaseURL overrides the API endpoint, for proxies and tests.
	BaseURL             string
	EmbeddingModel      string
	EmbeddingDimensions int
	ChatModel           string
}

// NewClient creates a new OpenAI client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	return &Client{
		api:        newOpenAIAdapter(cfg.APIKey, cfg.BaseURL, openai.EmbeddingModel(cfg.EmbeddingModel), cfg.ChatModel),
		dimensions: dimensions,
	}
}

// NewClientFromEnv creates a new OpenAI client using OPENAI_API_KEY environment variable
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClient(apiKey), nil
}

// Embed generates an embedding for the given text in the given mode.
func (c *Client) Embed(ctx context.Context, text string, mode EmbedMode) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	embedding, err := c.api.CreateEmbeddings(ctx, strings.TrimSpace(text))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s embedding: %w", mode, err)
	}

	if len(embedding) != c.dimensions {
		return nil, ErrWrongDimensions
	}

	return embedding, nil
}

// EmbedDocument embeds text destined for the index.
func (c *Client) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return c.Embed(ctx, text, EmbedModeDocument)
}

// EmbedQuery embeds a retrieval question.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.Embed(ctx, text, EmbedModeQuery)
}

// Generate produces text for the prompt with bounded output length. An empty
// result with a nil error means the model returned no usable candidate.
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyText
	}
	return c.api.CreateChatCompletion(ctx, prompt, maxTokens, temperature)
}
