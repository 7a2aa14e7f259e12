package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Source identifies which strategy produced a record
type Source string

const (
	SourceStructured Source = "structured"
	SourceProvider   Source = "provider"
	SourceLLM        Source = "llm"
	SourceRegex      Source = "regex"
	SourceFallback   Source = "fallback"
	SourceManual     Source = "manual"
)

// Record field keys as used by the provider data collection and the LLM schema
const (
	FieldProject            = "project"
	FieldHours              = "hours"
	FieldSummary            = "summary"
	FieldClosed             = "closed"
	FieldSalesOpportunities = "sales_opportunities"
)

// Closed values
const (
	ClosedYes = "yes"
	ClosedNo  = "no"
)

// Values written to the fallback record when the provider never delivers data
const (
	PlaceholderProject = "Unknown"
	PlaceholderSummary = "Data collection unavailable"
)

// Record is the data-collection record extracted from a conversation.
// Every field is optional; nil means not mentioned.
type Record struct {
	Project            *string `json:"project"`
	Hours              *string `json:"hours"`
	Summary            *string `json:"summary"`
	Closed             *string `json:"closed"`
	SalesOpportunities *string `json:"sales_opportunities,omitempty"`

	Source  Source `json:"source,omitempty"`
	Partial bool   `json:"partial,omitempty"`
}

// ProjectOption is a known project code offered to the LLM
type ProjectOption struct {
	Number   string `json:"uppdragsnr"`
	Customer string `json:"kund"`
}

// Input is everything a strategy may draw on for one conversation
type Input struct {
	ConversationID string
	Transcript     string
	Collected      *Record
	ProjectOptions []ProjectOption
}

// StringPtr returns a pointer to the trimmed value, or nil when it is blank
func StringPtr(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

// Value dereferences an optional field
func Value(field *string) string {
	if field == nil {
		return ""
	}
	return *field
}

// NormalizeClosed maps the spoken or typed closed flag onto yes/no.
// Unrecognized values yield nil.
func NormalizeClosed(value string) *string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "ja", "true", "y", "j", "1":
		return StringPtr(ClosedYes)
	case "no", "nej", "false", "n", "0":
		return StringPtr(ClosedNo)
	default:
		return nil
	}
}

// FromCollected builds a record from provider-native key/value pairs
func FromCollected(values map[string]string) Record {
	var r Record
	for key, value := range values {
		switch strings.ToLower(strings.TrimSpace(key)) {
		case FieldProject:
			r.Project = StringPtr(value)
		case FieldHours:
			r.Hours = StringPtr(value)
		case FieldSummary:
			r.Summary = StringPtr(value)
		case FieldClosed:
			r.Closed = NormalizeClosed(value)
		case FieldSalesOpportunities:
			r.SalesOpportunities = StringPtr(value)
		}
	}
	return r
}

// FallbackRecord is persisted when provider polling is exhausted
func FallbackRecord() Record {
	return Record{
		Project: StringPtr(PlaceholderProject),
		Summary: StringPtr(PlaceholderSummary),
		Source:  SourceFallback,
		Partial: true,
	}
}

func (r Record) fields() []*string {
	return []*string{r.Project, r.Hours, r.Summary, r.Closed, r.SalesOpportunities}
}

// IsEmpty reports whether no field carries a value
func (r Record) IsEmpty() bool {
	for _, f := range r.fields() {
		if f != nil && strings.TrimSpace(*f) != "" {
			return false
		}
	}
	return true
}

// IsPlaceholder reports whether the record only carries the fallback values
func (r Record) IsPlaceholder() bool {
	if r.IsEmpty() {
		return false
	}
	return Value(r.Project) == PlaceholderProject &&
		(r.Summary == nil || *r.Summary == PlaceholderSummary) &&
		r.Hours == nil && r.Closed == nil && r.SalesOpportunities == nil
}

// Values returns the non-empty fields keyed by field name
func (r Record) Values() map[string]string {
	values := make(map[string]string)
	set := func(key string, field *string) {
		if field != nil {
			values[key] = *field
		}
	}
	set(FieldProject, r.Project)
	set(FieldHours, r.Hours)
	set(FieldSummary, r.Summary)
	set(FieldClosed, r.Closed)
	set(FieldSalesOpportunities, r.SalesOpportunities)
	return values
}

// String renders the record as key=value pairs for logs and the CLI
func (r Record) String() string {
	values := r.Values()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, values[k]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// ParseRecord decodes an LLM JSON object into a record.
// Scalars are accepted as strings, numbers or booleans; anything else is a ParseError.
func ParseRecord(content string) (Record, error) {
	decoder := json.NewDecoder(bytes.NewReader([]byte(strings.TrimSpace(content))))
	decoder.UseNumber()

	var raw map[string]interface{}
	if err := decoder.Decode(&raw); err != nil {
		return Record{}, &ParseError{Content: content, Err: fmt.Errorf("invalid JSON object: %w", err)}
	}
	if raw == nil {
		return Record{}, &ParseError{Content: content, Err: fmt.Errorf("response is not a JSON object")}
	}
	// the object must be the whole response
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Record{}, &ParseError{Content: content, Err: fmt.Errorf("unexpected content after JSON object")}
	}

	var r Record
	known := 0
	targets := map[string]**string{
		FieldProject:            &r.Project,
		FieldHours:              &r.Hours,
		FieldSummary:            &r.Summary,
		FieldClosed:             &r.Closed,
		FieldSalesOpportunities: &r.SalesOpportunities,
	}

	for key, value := range raw {
		target, ok := targets[strings.ToLower(key)]
		if !ok {
			continue
		}
		known++

		text, err := scalarString(value)
		if err != nil {
			return Record{}, &ParseError{Content: content, Err: fmt.Errorf("field %s: %w", key, err)}
		}
		*target = StringPtr(text)
	}

	if known == 0 {
		return Record{}, &ParseError{Content: content, Err: fmt.Errorf("no record fields in response")}
	}

	if r.Closed != nil {
		r.Closed = NormalizeClosed(*r.Closed)
	}

	return r, nil
}

func scalarString(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("unexpected type %T", value)
	}
}
