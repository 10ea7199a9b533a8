package model

// Operation describes what a step intends to do. It is the input of the
// impact analyzer and the source of the step preview.
type Operation struct {
	Kind        string                 `json:"kind" yaml:"kind"`
	Target      string                 `json:"target,omitempty" yaml:"target,omitempty"`
	Environment string                 `json:"environment,omitempty" yaml:"environment,omitempty"`
	Changes     []*FieldChange         `json:"changes,omitempty" yaml:"changes,omitempty"`
	Record      map[string]interface{} `json:"record,omitempty" yaml:"record,omitempty"`
	Transaction *Transaction           `json:"transaction,omitempty" yaml:"transaction,omitempty"`
	Flags       []string               `json:"flags,omitempty" yaml:"flags,omitempty"`
	Attributes  map[string]interface{} `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// FieldChange is a single before/after pair of a mutated field.
type FieldChange struct {
	Field  string      `json:"field" yaml:"field"`
	Before interface{} `json:"before,omitempty" yaml:"before,omitempty"`
	After  interface{} `json:"after,omitempty" yaml:"after,omitempty"`
}

// Transaction is a monetary breakdown. Amounts are integer minor units.
type Transaction struct {
	Currency string      `json:"currency" yaml:"currency"`
	Items    []*LineItem `json:"items,omitempty" yaml:"items,omitempty"`
}

// LineItem is one entry of a transaction breakdown.
type LineItem struct {
	Description string `json:"description" yaml:"description"`
	Amount      int64  `json:"amount" yaml:"amount"`
}

// Total returns the sum of all line item amounts.
func (t *Transaction) Total() int64 {
	if t == nil {
		return 0
	}
	var total int64
	for _, item := range t.Items {
		if item != nil {
			total += item.Amount
		}
	}
	return total
}

// HasFlag reports whether the operation carries flag.
func (o *Operation) HasFlag(flag string) bool {
	if o == nil {
		return false
	}
	for _, candidate := range o.Flags {
		if candidate == flag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the operation's collections.
func (o *Operation) Clone() *Operation {
	if o == nil {
		return nil
	}
	clone := *o
	if len(o.Changes) > 0 {
		clone.Changes = make([]*FieldChange, len(o.Changes))
		for i, change := range o.Changes {
			if change != nil {
				c := *change
				clone.Changes[i] = &c
			}
		}
	}
	clone.Record = cloneMap(o.Record)
	clone.Attributes = cloneMap(o.Attributes)
	if o.Flags != nil {
		clone.Flags = append([]string(nil), o.Flags...)
	}
	if o.Transaction != nil {
		tx := *o.Transaction
		if o.Transaction.Items != nil {
			tx.Items = make([]*LineItem, len(o.Transaction.Items))
			for i, item := range o.Transaction.Items {
				if item != nil {
					it := *item
					tx.Items[i] = &it
				}
			}
		}
		clone.Transaction = &tx
	}
	return &clone
}

func cloneMap(source map[string]interface{}) map[string]interface{} {
	if source == nil {
		return nil
	}
	ret := make(map[string]interface{}, len(source))
	for k, v := range source {
		ret[k] = v
	}
	return ret
}
