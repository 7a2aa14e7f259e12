package extraction

import "fmt"

// EmptyRecordPolicy decides whether a record without real content is persisted
type EmptyRecordPolicy string

const (
	// PolicySkip never persists all-null or placeholder-only records
	PolicySkip EmptyRecordPolicy = "skip"
	// PolicyPlaceholder persists fallback records but skips all-null ones
	PolicyPlaceholder EmptyRecordPolicy = "placeholder"
	// PolicyAlways persists every record
	PolicyAlways EmptyRecordPolicy = "always"
)

// ParseEmptyRecordPolicy validates a configured policy name
func ParseEmptyRecordPolicy(name string) (EmptyRecordPolicy, error) {
	switch p := EmptyRecordPolicy(name); p {
	case PolicySkip, PolicyPlaceholder, PolicyAlways:
		return p, nil
	case "":
		return PolicyPlaceholder, nil
	default:
		return "", fmt.Errorf("unknown empty record policy %q", name)
	}
}

// ShouldPersist applies the policy to a record
func (p EmptyRecordPolicy) ShouldPersist(r Record) bool {
	switch p {
	case PolicyAlways:
		return true
	case PolicySkip:
		return !r.IsEmpty() && !r.IsPlaceholder()
	default:
		return !r.IsEmpty()
	}
}
