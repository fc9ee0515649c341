package domain

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// QARecord is one logged question/answer interaction. Append-only: records
// are written to a sink once and never updated or deleted.
type QARecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	UserType  UserType  `json:"user_type,omitempty"`
	Region    string    `json:"region,omitempty"`
}

// NewQARecord stamps a record with a fresh ULID and the current UTC time.
func NewQARecord(question, answer string, profile UserProfile) QARecord {
	return QARecord{
		ID:        ulid.Make().String(),
		Timestamp: time.Now().UTC(),
		Question:  question,
		Answer:    answer,
		UserType:  profile.UserType,
		Region:    profile.Region,
	}
}
