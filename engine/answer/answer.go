// Package answer runs the grounded Q&A pipeline. It embeds a visitor
// question, ranks the content snapshot, composes a bounded-length context
// from the best snippets, and asks an external language model for an answer
// grounded in that context. Every successful interaction is handed to the
// Q&A logger.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/curbside-labs/contenthub/engine/domain"
	"github.com/curbside-labs/contenthub/engine/rank"
)

// Embedder turns text into a query embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces an answer from a grounded prompt.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GenerateRequest is the opaque language-model call.
type GenerateRequest struct {
	System      string
	Prompt      string
	Model       string
	Temperature float32
	MaxTokens   int
}

// QALogger records an interaction. Implementations must never fail the
// caller; logging is best-effort by contract.
type QALogger interface {
	Log(ctx context.Context, rec domain.QARecord)
}

// Options configures the Q&A pipeline.
type Options struct {
	TopK          int
	ContextBudget int // max context characters handed to the model
	Model         string
	Temperature   float32
	MaxTokens     int
	SystemPrompt  string
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		TopK:          5,
		ContextBudget: 8000,
		Model:         "gpt-4",
		Temperature:   0.7,
		MaxTokens:     600,
		SystemPrompt:  defaultSystemPrompt,
	}
}

const defaultSystemPrompt = `You are a helpful assistant for a transit technology provider's website.
Answer questions based only on the provided content. Include URLs when
mentioning specific articles or case studies.`

const promptTemplate = `You are a helpful assistant that answers questions about this website based on the following content:

%s

Question: %s

Answer based only on the content provided above. Include specific URLs when mentioning articles or case studies. If the answer is not in the content, say so.`

// Service is the Q&A orchestration service.
type Service struct {
	embed    Embedder
	generate Generator
	qa       QALogger
	opts     Options
	logger   *slog.Logger
}

// New creates a Q&A Service. qa may be nil to skip logging.
func New(embed Embedder, generate Generator, qa QALogger, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{embed: embed, generate: generate, qa: qa, opts: opts, logger: logger}
}

// Answer is the structured Q&A response.
type Answer struct {
	Text    string                `json:"text"`
	Sources []domain.RankedResult `json:"sources"`
}

// caseStudyCues reorder retrieval when the visitor asks for case studies.
var caseStudyCues = []string{"case study", "case studies", "success story"}

// Answer runs the full pipeline for one question. Embedding and generation
// failures propagate once, unwrapped to their taxonomy sentinel; there are
// no retries. Failed generations are not logged.
func (s *Service) Answer(ctx context.Context, question string, profile domain.UserProfile, items []domain.ContentItem) (*Answer, error) {
	s.logger.Info("answer start", "question_len", len(question), "user_type", profile.UserType, "region", profile.Region)

	// 1. Embed the question.
	embedding, err := s.embed.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("answer: embed question: %w: %w", domain.ErrEmbedding, err)
	}

	// 2. Rank the snapshot, case studies boosted when asked for.
	ranked := rank.Rank(embedding, items)
	ranked = boostCaseStudies(question, ranked)
	if len(ranked) > s.opts.TopK {
		ranked = ranked[:s.opts.TopK]
	}

	// 3. Compose the bounded context.
	contextText, included := composeContext(ranked, s.opts.ContextBudget)
	s.logger.Info("answer context composed", "snippets", len(included), "chars", len(contextText))

	// 4. One generation call, surfaced unchanged on failure.
	text, err := s.generate.Generate(ctx, GenerateRequest{
		System:      s.opts.SystemPrompt,
		Prompt:      fmt.Sprintf(promptTemplate, contextText, question),
		Model:       s.opts.Model,
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("answer: generate: %w: %w", domain.ErrGeneration, err)
	}

	// 5. Record the interaction. The logger swallows sink failures; the
	// detached context lets the append outlive this request.
	if s.qa != nil {
		s.qa.Log(context.WithoutCancel(ctx), domain.NewQARecord(question, text, profile))
	}

	return &Answer{Text: text, Sources: included}, nil
}

// boostCaseStudies stably moves case-study items ahead of other results
// when the question mentions them. Rank order is preserved within each
// group.
func boostCaseStudies(question string, ranked []domain.RankedResult) []domain.RankedResult {
	q := strings.ToLower(question)
	cued := false
	for _, cue := range caseStudyCues {
		if strings.Contains(q, cue) {
			cued = true
			break
		}
	}
	if !cued {
		return ranked
	}

	var caseStudies, rest []domain.RankedResult
	for _, r := range ranked {
		if r.Item.Category == domain.CategoryCaseStudy {
			caseStudies = append(caseStudies, r)
		} else {
			rest = append(rest, r)
		}
	}
	return append(caseStudies, rest...)
}

// composeContext concatenates snippet blocks in rank order up to the
// character budget. Higher-ranked snippets stay whole; the lowest-ranked
// snippet that still fits is truncated to the remaining budget, and
// everything past it is dropped. Returns the context and the included
// results in rank order.
func composeContext(ranked []domain.RankedResult, budget int) (string, []domain.RankedResult) {
	const sep = "\n\n"

	var b strings.Builder
	var included []domain.RankedResult

	for _, r := range ranked {
		head := snippetHead(r.Item)
		body := r.Item.BodyText
		if body == "" {
			body = r.Item.Description
		}

		remaining := budget - b.Len()
		if len(included) > 0 {
			remaining -= len(sep)
		}
		// The full block fits: keep it whole and continue.
		if len(head)+len(body) <= remaining {
			if len(included) > 0 {
				b.WriteString(sep)
			}
			b.WriteString(head)
			b.WriteString(body)
			included = append(included, r)
			continue
		}
		// Partial room: truncate this snippet's body and stop. A snippet
		// whose header alone does not fit is dropped instead.
		if keep := remaining - len(head); keep > 0 && len(body) > 0 {
			if keep > len(body) {
				keep = len(body)
			}
			if len(included) > 0 {
				b.WriteString(sep)
			}
			b.WriteString(head)
			b.WriteString(body[:keep])
			included = append(included, r)
		}
		break
	}
	return b.String(), included
}

func snippetHead(item domain.ContentItem) string {
	return fmt.Sprintf("Title: %s\nURL: %s\nContent: ", item.Title, item.URL)
}
