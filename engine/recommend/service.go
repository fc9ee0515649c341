package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/curbside-labs/contenthub/engine/domain"
	"github.com/curbside-labs/contenthub/engine/geo"
	"github.com/curbside-labs/contenthub/engine/rank"
)

// Embedder turns text into a query embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Options configures the recommendation pipeline.
type Options struct {
	GeneralCount  int
	RegionalCount int
	// MaxMiles widens the visitor's region to states within this radius
	// when collecting regional candidates.
	MaxMiles float64
}

// DefaultOptions returns the current selection policy.
func DefaultOptions() Options {
	return Options{
		GeneralCount:  GeneralCount,
		RegionalCount: RegionalCount,
		MaxMiles:      geo.DefaultMaxMiles,
	}
}

// Service runs the recommendation pipeline: relevance filter, profile query
// embedding, similarity ranking, bucket assembly.
type Service struct {
	embed  Embedder
	opts   Options
	logger *slog.Logger
}

// New creates a recommendation Service.
func New(embed Embedder, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{embed: embed, opts: opts, logger: logger}
}

// userTypeKeywords gate candidates by visitor type before ranking.
var userTypeKeywords = map[domain.UserType][]string{
	domain.UserTypeCity:          {"microtransit", "paratransit", "city", "municipal", "urban"},
	domain.UserTypeTransitAgency: {"paratransit", "transit", "agency", "public transportation"},
}

// Recommend assembles buckets for the profile over the given candidates.
// An embedding failure propagates; no buckets are produced.
func (s *Service) Recommend(ctx context.Context, profile domain.UserProfile, items []domain.ContentItem) (Buckets, error) {
	// 1. Relevance filter by visitor type.
	candidates := FilterByUserType(items, profile.UserType)
	s.logger.Info("recommend candidates filtered",
		"user_type", profile.UserType, "total", len(items), "kept", len(candidates))

	// 2. Embed the profile query.
	query := ProfileQuery(profile)
	embedding, err := s.embed.Embed(ctx, query)
	if err != nil {
		return Buckets{}, fmt.Errorf("recommend: embed profile query: %w: %w", domain.ErrEmbedding, err)
	}

	// 3. Rank all candidates.
	ranked := rank.Rank(embedding, candidates)

	// 4. Regional candidates: tags intersecting the widened region set,
	// case studies ahead of articles.
	regions := geo.Nearby(profile.Region, s.opts.MaxMiles)
	regional := FilterRegional(ranked, regions)

	// 5. Assemble buckets, regional first.
	buckets := Assemble(ranked, regional, s.opts.GeneralCount, s.opts.RegionalCount)
	s.logger.Info("recommend assembled",
		"region", profile.Region, "general", len(buckets.General), "regional", len(buckets.Regional))
	return buckets, nil
}

// FilterByUserType keeps items matching any of the visitor type's keywords
// in title, description, or body. Unknown types are not filtered.
func FilterByUserType(items []domain.ContentItem, userType domain.UserType) []domain.ContentItem {
	keywords, ok := userTypeKeywords[userType]
	if !ok {
		return items
	}
	var out []domain.ContentItem
	for _, item := range items {
		haystack := strings.ToLower(item.Title + " " + item.Description + " " + item.BodyText)
		for _, kw := range keywords {
			if strings.Contains(haystack, kw) {
				out = append(out, item)
				break
			}
		}
	}
	return out
}

// FilterRegional keeps ranked results whose region tags intersect the given
// region set, case studies first. Rank order is preserved within each group.
func FilterRegional(ranked []domain.RankedResult, regions []string) []domain.RankedResult {
	if len(regions) == 0 {
		return nil
	}
	want := make(map[string]bool, len(regions))
	for _, r := range regions {
		want[r] = true
	}

	var caseStudies, articles []domain.RankedResult
	for _, r := range ranked {
		matched := false
		for _, tag := range r.Item.RegionTags {
			if want[tag] {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if r.Item.Category == domain.CategoryCaseStudy {
			caseStudies = append(caseStudies, r)
		} else {
			articles = append(articles, r)
		}
	}
	return append(caseStudies, articles...)
}

// ProfileQuery builds the ranking query text for a profile.
func ProfileQuery(profile domain.UserProfile) string {
	switch profile.UserType {
	case domain.UserTypeCity:
		return fmt.Sprintf("microtransit, paratransit and on-demand transit solutions for a city in %s", profile.Region)
	case domain.UserTypeTransitAgency:
		return fmt.Sprintf("paratransit and public transportation technology for a transit agency in %s", profile.Region)
	default:
		return fmt.Sprintf("transit technology solutions in %s", profile.Region)
	}
}
