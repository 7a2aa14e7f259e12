package sqlite

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// MaxDefectsPerCase is how many defects one case may hold at a time
const MaxDefectsPerCase = 20

// ChecklistResponse is the answer and comment for one checklist item in a case
type ChecklistResponse struct {
	ID          string    `json:"id"`
	CaseID      string    `json:"case_id"`
	ChecklistID string    `json:"checklist_id"`
	Answer      *string   `json:"answer"`
	Comment     string    `json:"comment"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Defect is a numbered deficiency in a case with its optional boilerplate
type Defect struct {
	ID           string    `json:"id"`
	CaseID       string    `json:"case_id"`
	DefectNumber int       `json:"defect_number"`
	Description  string    `json:"description"`
	Brist        *string   `json:"brist"`
	Atgard       *string   `json:"atgard"`
	Motivering   *string   `json:"motivering"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CaseDefect is a defect together with the case it belongs to
type CaseDefect struct {
	Defect
	CaseName    string `json:"case_name"`
	CaseNumber  string `json:"case_number"`
	CaseAddress string `json:"case_address"`
}

// ConversationData is the persisted data-collection record of a conversation
type ConversationData struct {
	ConversationID     string    `json:"conversation_id"`
	Project            *string   `json:"project"`
	Hours              *string   `json:"hours"`
	Summary            *string   `json:"summary"`
	Closed             *string   `json:"closed"`
	SalesOpportunities *string   `json:"sales_opportunities"`
	Source             string    `json:"source,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Transcript is the serialized transcript of a conversation
type Transcript struct {
	ConversationID string    `json:"conversation_id"`
	Transcript     string    `json:"transcript"`
	CreatedAt      time.Time `json:"created_at"`
}

// Project is a known project code with its customer
type Project struct {
	Uppdragsnr string `json:"uppdragsnr"`
	Kund       string `json:"kund"`
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// Fixed-width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}
