package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/curbside-labs/contenthub/engine/domain"
)

type mockEmbedder struct {
	resp []float32
	err  error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return m.resp, m.err
}

type mockGenerator struct {
	resp    string
	err     error
	lastReq GenerateRequest
	calls   int
}

func (m *mockGenerator) Generate(_ context.Context, req GenerateRequest) (string, error) {
	m.lastReq = req
	m.calls++
	return m.resp, m.err
}

type mockQALogger struct {
	records []domain.QARecord
}

func (m *mockQALogger) Log(_ context.Context, rec domain.QARecord) {
	m.records = append(m.records, rec)
}

func contentItem(id string, category domain.Category, body string, emb ...float32) domain.ContentItem {
	return domain.ContentItem{
		ID:        id,
		URL:       "https://example.com/" + id,
		Title:     "Item " + id,
		BodyText:  body,
		Category:  category,
		Embedding: emb,
	}
}

func TestAnswer_HappyPath(t *testing.T) {
	items := []domain.ContentItem{
		contentItem("near", domain.CategoryArticle, "closest content", 1, 0),
		contentItem("far", domain.CategoryArticle, "distant content", 0, 1),
	}
	embedder := &mockEmbedder{resp: []float32{1, 0}}
	generator := &mockGenerator{resp: "grounded answer"}
	qa := &mockQALogger{}
	svc := New(embedder, generator, qa, DefaultOptions(), nil)
	profile := domain.UserProfile{UserType: domain.UserTypeCity, Region: "CA"}

	ans, err := svc.Answer(context.Background(), "what is microtransit?", profile, items)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if ans.Text != "grounded answer" {
		t.Errorf("text = %q", ans.Text)
	}
	if len(ans.Sources) == 0 || ans.Sources[0].Item.ID != "near" {
		t.Errorf("expected nearest item first in sources, got %+v", ans.Sources)
	}
	if !strings.Contains(generator.lastReq.Prompt, "closest content") {
		t.Errorf("prompt missing snippet content:\n%s", generator.lastReq.Prompt)
	}
	if !strings.Contains(generator.lastReq.Prompt, "what is microtransit?") {
		t.Errorf("prompt missing question")
	}
	if len(qa.records) != 1 {
		t.Fatalf("expected 1 logged record, got %d", len(qa.records))
	}
	rec := qa.records[0]
	if rec.Question != "what is microtransit?" || rec.Answer != "grounded answer" {
		t.Errorf("logged record = %+v", rec)
	}
	if rec.UserType != domain.UserTypeCity || rec.Region != "CA" {
		t.Errorf("profile fields not logged: %+v", rec)
	}
}

func TestAnswer_EmbedFailure(t *testing.T) {
	svc := New(&mockEmbedder{err: errors.New("quota")}, &mockGenerator{}, &mockQALogger{}, DefaultOptions(), nil)
	_, err := svc.Answer(context.Background(), "anything here", domain.UserProfile{}, nil)
	if !errors.Is(err, domain.ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
}

func TestAnswer_GenerationFailureNotLoggedNotRetried(t *testing.T) {
	generator := &mockGenerator{err: errors.New("timeout")}
	qa := &mockQALogger{}
	svc := New(&mockEmbedder{resp: []float32{1}}, generator, qa, DefaultOptions(), nil)

	_, err := svc.Answer(context.Background(), "a valid question", domain.UserProfile{},
		[]domain.ContentItem{contentItem("a", domain.CategoryArticle, "body", 1)})
	if !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
	if generator.calls != 1 {
		t.Errorf("generator called %d times, want exactly 1 (no retry)", generator.calls)
	}
	if len(qa.records) != 0 {
		t.Errorf("failed generation must not be logged, got %d records", len(qa.records))
	}
}

func TestAnswer_NilLoggerSkipsLogging(t *testing.T) {
	svc := New(&mockEmbedder{resp: []float32{1}}, &mockGenerator{resp: "ok"}, nil, DefaultOptions(), nil)
	if _, err := svc.Answer(context.Background(), "a valid question", domain.UserProfile{},
		[]domain.ContentItem{contentItem("a", domain.CategoryArticle, "body", 1)}); err != nil {
		t.Fatalf("Answer: %v", err)
	}
}

func TestBoostCaseStudies(t *testing.T) {
	ranked := []domain.RankedResult{
		{Item: domain.ContentItem{ID: "a", Category: domain.CategoryArticle}, Score: 0.9},
		{Item: domain.ContentItem{ID: "cs1", Category: domain.CategoryCaseStudy}, Score: 0.8},
		{Item: domain.ContentItem{ID: "b", Category: domain.CategoryArticle}, Score: 0.7},
		{Item: domain.ContentItem{ID: "cs2", Category: domain.CategoryCaseStudy}, Score: 0.6},
	}

	boosted := boostCaseStudies("any case studies near Seattle?", ranked)
	want := []string{"cs1", "cs2", "a", "b"}
	for i, id := range want {
		if boosted[i].Item.ID != id {
			t.Errorf("boosted[%d] = %s, want %s", i, boosted[i].Item.ID, id)
		}
	}

	plain := boostCaseStudies("how does pricing work?", ranked)
	if plain[0].Item.ID != "a" {
		t.Errorf("question without cue must keep rank order, got %s first", plain[0].Item.ID)
	}
}

func TestComposeContext_WithinBudget(t *testing.T) {
	ranked := []domain.RankedResult{
		{Item: contentItem("a", domain.CategoryArticle, "short body", 1)},
		{Item: contentItem("b", domain.CategoryArticle, "another body", 1)},
	}
	ctx, included := composeContext(ranked, 8000)
	if len(included) != 2 {
		t.Fatalf("included = %d, want 2", len(included))
	}
	if !strings.Contains(ctx, "short body") || !strings.Contains(ctx, "another body") {
		t.Errorf("context missing bodies:\n%s", ctx)
	}
}

func TestComposeContext_TruncatesLowestIncluded(t *testing.T) {
	first := contentItem("first", domain.CategoryArticle, strings.Repeat("A", 200), 1)
	second := contentItem("second", domain.CategoryArticle, strings.Repeat("B", 200), 1)
	ranked := []domain.RankedResult{{Item: first}, {Item: second}}

	budget := len(snippetHead(first)) + 200 + 2 + len(snippetHead(second)) + 50
	ctx, included := composeContext(ranked, budget)

	if len(ctx) > budget {
		t.Fatalf("context length %d exceeds budget %d", len(ctx), budget)
	}
	if len(included) != 2 {
		t.Fatalf("included = %d, want 2", len(included))
	}
	if strings.Count(ctx, "A") != 200 {
		t.Errorf("highest-ranked snippet was truncated: %d As", strings.Count(ctx, "A"))
	}
	if got := strings.Count(ctx, "B"); got >= 200 || got == 0 {
		t.Errorf("lowest included snippet should be partially kept, got %d Bs", got)
	}
}

func TestComposeContext_DropsPastTruncation(t *testing.T) {
	ranked := []domain.RankedResult{
		{Item: contentItem("a", domain.CategoryArticle, strings.Repeat("A", 100), 1)},
		{Item: contentItem("b", domain.CategoryArticle, strings.Repeat("B", 100), 1)},
		{Item: contentItem("c", domain.CategoryArticle, strings.Repeat("C", 100), 1)},
	}
	budget := len(snippetHead(ranked[0].Item)) + 100 + 2 + len(snippetHead(ranked[1].Item)) + 10
	ctx, included := composeContext(ranked, budget)

	if len(included) != 2 {
		t.Fatalf("included = %d, want 2 (third dropped)", len(included))
	}
	if strings.Contains(ctx, strings.Repeat("C", 5)) {
		t.Errorf("snippet past the truncated one must be dropped entirely")
	}
}

func TestComposeContext_HeaderDoesNotFit(t *testing.T) {
	ranked := []domain.RankedResult{
		{Item: contentItem("a", domain.CategoryArticle, strings.Repeat("A", 50), 1)},
	}
	ctx, included := composeContext(ranked, 5)
	if len(included) != 0 || ctx != "" {
		t.Errorf("expected nothing included under a tiny budget, got %q (%d included)", ctx, len(included))
	}
}

func TestComposeContext_DescriptionFallback(t *testing.T) {
	item := domain.ContentItem{ID: "d", URL: "https://example.com/d", Title: "Desc only", Description: "summary text"}
	ctx, included := composeContext([]domain.RankedResult{{Item: item}}, 8000)
	if len(included) != 1 || !strings.Contains(ctx, "summary text") {
		t.Errorf("expected description fallback, got %q", ctx)
	}
}
