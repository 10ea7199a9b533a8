package dao

// Parameter is a named List filter. Value is a string or, for any-of
// filters, a []string.
type Parameter struct {
	Name  string
	Value interface{}
}

// NewParameter creates a filter matching any of values.
func NewParameter(name string, values ...string) *Parameter {
	if len(values) == 1 {
		return &Parameter{Name: name, Value: values[0]}
	}
	return &Parameter{Name: name, Value: values}
}

// Values returns the accepted values of p.
func (p *Parameter) Values() []string {
	if p == nil {
		return nil
	}
	switch actual := p.Value.(type) {
	case string:
		return []string{actual}
	case []string:
		return actual
	}
	return nil
}
