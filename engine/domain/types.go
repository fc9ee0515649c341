// Package domain defines core domain types, constants, and validation for the
// contenthub pipeline. It acts as the validation gate at pipeline entry points.
package domain

import "time"

// Category classifies a content item by how it is presented on the site.
type Category string

const (
	CategoryArticle   Category = "article"
	CategoryCaseStudy Category = "case_study"
)

// ValidCategories is the set of recognised content categories.
var ValidCategories = map[Category]bool{
	CategoryArticle:   true,
	CategoryCaseStudy: true,
}

// UserType classifies the visitor filling out the profile form.
type UserType string

const (
	UserTypeCity          UserType = "city"
	UserTypeTransitAgency UserType = "transit_agency"
)

// ValidUserTypes is the set of recognised user types.
var ValidUserTypes = map[UserType]bool{
	UserTypeCity:          true,
	UserTypeTransitAgency: true,
}

// ContentItem is one cached page of site content plus its embedding.
// Items are immutable once cached and replaced wholesale on refresh.
type ContentItem struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	BodyText     string    `json:"body_text"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Category     Category  `json:"category"`
	RegionTags   []string  `json:"region_tags,omitempty"`
	Embedding    []float32 `json:"embedding"`
}

// HasRegion reports whether the item is tagged with the given state code.
func (c ContentItem) HasRegion(state string) bool {
	for _, tag := range c.RegionTags {
		if tag == state {
			return true
		}
	}
	return false
}

// UserProfile is the ephemeral, session-scoped visitor profile.
// Never persisted.
type UserProfile struct {
	UserType UserType `json:"user_type"`
	Region   string   `json:"region"` // USPS state code, e.g. "CA"
}

// RankedResult pairs a content item with its similarity score in [-1, 1].
// Derived at query time, never stored.
type RankedResult struct {
	Item  ContentItem `json:"item"`
	Score float64     `json:"score"`
}

// ScrapedPage is the crawler's output unit, before embedding.
type ScrapedPage struct {
	URL          string    `json:"url"`
	Section      string    `json:"section,omitempty"` // site section the URL was discovered under
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Body         string    `json:"body"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}
