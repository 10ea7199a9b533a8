package model

// Preview is a read-only, human oriented description of a pending operation.
type Preview struct {
	Operation   string                 `json:"operation"`
	Target      string                 `json:"target,omitempty"`
	Environment string                 `json:"environment,omitempty"`
	Changes     []*FieldChange         `json:"changes,omitempty"`
	Record      map[string]interface{} `json:"record,omitempty"`
	Transaction *Transaction           `json:"transaction,omitempty"`
	// Diff is a unified diff of the before/after field values.
	Diff string    `json:"diff,omitempty"`
	Stat *DiffStat `json:"stat,omitempty"`
}

// DiffStat summarises Diff.
type DiffStat struct {
	Added   int `json:"added"`
	Changed int `json:"changed"`
	Deleted int `json:"deleted"`
}

// Clone returns a deep copy of the preview.
func (p *Preview) Clone() *Preview {
	if p == nil {
		return nil
	}
	op := (&Operation{Changes: p.Changes, Record: p.Record, Transaction: p.Transaction}).Clone()
	clone := *p
	clone.Changes = op.Changes
	clone.Record = op.Record
	clone.Transaction = op.Transaction
	if p.Stat != nil {
		stat := *p.Stat
		clone.Stat = &stat
	}
	return &clone
}
