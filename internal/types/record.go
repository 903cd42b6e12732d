package types

// Record is a produced business object destined for the deduplicating
// writer. Key is the stable external identity used to match records across
// runs; Mutable lists the field names the writer may overwrite when an
// existing document matches the key. Fields not listed as mutable are
// written once and never reset.
type Record struct {
	Key     string         `json:"key"`
	Fields  map[string]any `json:"fields"`
	Mutable []string       `json:"mutable,omitempty"`
}

// IsMutable reports whether the named field may be overwritten on update
func (r Record) IsMutable(field string) bool {
	for _, m := range r.Mutable {
		if m == field {
			return true
		}
	}
	return false
}

// UpsertOutcome describes what the writer did with a single record
type UpsertOutcome string

const (
	OutcomeCreated UpsertOutcome = "created"
	OutcomeUpdated UpsertOutcome = "updated"
)

// UpsertReport summarizes one Upsert batch
type UpsertReport struct {
	Created  int                      `json:"created"`
	Updated  int                      `json:"updated"`
	Outcomes map[string]UpsertOutcome `json:"outcomes"`
}
