package domain

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	minQuestionLength = 5
	// minBodyLength filters out nav-only and boilerplate pages at ingest.
	minBodyLength = 100
)

// ValidateProfile checks a user profile. Region is validated for shape only
// (two-letter USPS code); whether it maps to a known state is the geo
// package's concern.
func ValidateProfile(p UserProfile) error {
	if !ValidUserTypes[p.UserType] {
		return NewValidationError("user_type", string(p.UserType), ErrUnknownUserType)
	}
	if !isStateCode(p.Region) {
		return NewValidationError("region", p.Region, ErrUnknownRegion)
	}
	return nil
}

// ValidateQuestion checks a chat question before it reaches the embedder.
func ValidateQuestion(q string) error {
	text := strings.TrimSpace(q)
	if text == "" {
		return NewValidationError("question", text, ErrEmptyQuestion)
	}
	if utf8.RuneCountInString(text) < minQuestionLength {
		return NewValidationError("question", text, ErrQuestionTooShort)
	}
	return nil
}

// ValidateScrapedPage checks a crawled page before ingestion.
func ValidateScrapedPage(page ScrapedPage) error {
	if page.URL == "" {
		return fmt.Errorf("validate: url is empty")
	}
	u, err := url.Parse(page.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("validate: url %q is not an absolute http(s) url", page.URL)
	}
	if page.Title == "" {
		return fmt.Errorf("validate: title is empty")
	}
	if len(page.Body) < minBodyLength {
		return fmt.Errorf("validate: body too short (%d chars, need %d)", len(page.Body), minBodyLength)
	}
	return nil
}

// ValidateItem checks a content item at snapshot build and load time.
// Embedding dimensionality across items is the snapshot's invariant, not the
// item's, and is enforced by engine/content.
func ValidateItem(item ContentItem) error {
	if item.ID == "" {
		return fmt.Errorf("validate: item id is empty")
	}
	if item.URL == "" {
		return fmt.Errorf("validate: item %s: url is empty", item.ID)
	}
	if item.Title == "" {
		return fmt.Errorf("validate: item %s: title is empty", item.ID)
	}
	if !ValidCategories[item.Category] {
		return NewValidationError("category", string(item.Category), ErrUnknownCategory)
	}
	if len(item.Embedding) == 0 {
		return fmt.Errorf("validate: item %s: embedding is empty", item.ID)
	}
	return nil
}

func isStateCode(s string) bool {
	if len(s) != 2 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
