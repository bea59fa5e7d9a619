package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bluesearch/bluesearch/internal/domain"
)

// Generator produces text for a prompt. An empty result with a nil error
// means the model returned no usable candidate.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error)
}

const (
	// maxPromptPassages caps how many retrieved passages go into the prompt,
	// regardless of how many retrieval returned.
	maxPromptPassages = 10

	// retryTemperature is the low temperature used for the neutral second
	// attempt after a refused or empty first generation.
	retryTemperature = 0.2

	defaultPersona = "You are a helpful assistant that answers questions using recent Bluesky posts."

	neutralPersona = "You are a careful, neutral analyst. Summarize what the posts say in measured, factual language."
)

// AnswerConfig bounds generation output and sets the primary sampling
// temperature.
type AnswerConfig struct {
	MaxTokens   int
	Temperature float32
}

// DefaultAnswerConfig returns the generation defaults.
func DefaultAnswerConfig() AnswerConfig {
	return AnswerConfig{
		MaxTokens:   1536,
		Temperature: 0.4,
	}
}

// AnswerService produces grounded answers from retrieved passages. Generation
// is attempted twice: once with the requested persona, and once more under a
// neutral persona at low temperature when the first attempt yields nothing.
// No usable text after both attempts is a valid terminal outcome.
type AnswerService struct {
	generator Generator
	cfg       AnswerConfig
}

// NewAnswerService creates an AnswerService with default configuration.
func NewAnswerService(generator Generator) *AnswerService {
	return NewAnswerServiceWithConfig(generator, DefaultAnswerConfig())
}

// NewAnswerServiceWithConfig creates an AnswerService with explicit
// configuration.
func NewAnswerServiceWithConfig(generator Generator, cfg AnswerConfig) *AnswerService {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultAnswerConfig().MaxTokens
	}
	return &AnswerService{
		generator: generator,
		cfg:       cfg,
	}
}

// Answer generates a grounded answer for the question from the passages. An
// empty string means no answer could be produced; generation faults are
// logged here and degrade to that same outcome rather than erroring.
func (s *AnswerService) Answer(ctx context.Context, question string, passages []domain.Passage, persona string) string {
	if len(passages) == 0 {
		return ""
	}

	text, err := s.generator.Generate(ctx, BuildPrompt(question, passages, persona), s.cfg.MaxTokens, s.cfg.Temperature)
	if err != nil {
		log.Printf("answer: generation failed: %v", err)
	}
	if text != "" {
		return text
	}
	if ctx.Err() != nil {
		return ""
	}

	// Refusals and empty candidates get one more chance under a neutral
	// persona with the temperature turned down.
	text, err = s.generator.Generate(ctx, BuildPrompt(question, passages, neutralPersona), s.cfg.MaxTokens, retryTemperature)
	if err != nil {
		log.Printf("answer: retry generation failed: %v", err)
	}
	return text
}

// BuildPrompt assembles the grounded generation prompt: persona, numbered
// context posts with author and timestamp, the question, and the grounding
// instructions. At most maxPromptPassages passages are included.
func BuildPrompt(question string, passages []domain.Passage, persona string) string {
	if persona == "" {
		persona = defaultPersona
	}
	if len(passages) > maxPromptPassages {
		passages = passages[:maxPromptPassages]
	}

	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\nContext posts:\n")

	for i, passage := range passages {
		post := passage.Chunk.Post
		author := post.Author
		display := post.AuthorDisplayName
		if display == "" {
			display = author
		}
		fmt.Fprintf(&b, "\nPost #%d by @%s (%s) on %s:\n%s\n",
			i+1, author, display, post.CreatedAt.UTC().Format(time.RFC3339), passage.Chunk.Text)
	}

	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer using only the context posts above. Cite authors with their @handle when drawing on their posts. If the posts do not contain enough information to answer, say so plainly.")
	return b.String()
}
