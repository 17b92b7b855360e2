// Package sink decides which lookup outcomes become output rows and writes
// them to the delimited output file.
package sink

import (
	"errors"
	"fmt"
	"slices"

	"gtinlookup/internal/lookup"
)

const IdentifierColumn = "gtin"

// Row is one output record, Values follows Policy.Fields.
type Row struct {
	Identifier string
	Values     []string
}

func (r Row) Record() []string {
	return append([]string{r.Identifier}, r.Values...)
}

// Policy maps an outcome to an output row decision.
type Policy struct {
	// Fields are the ordered output columns after the identifier.
	Fields []string
	// Required lists fields of which at least one must be non-empty for a row
	// to be written.
	Required []string
}

func DefaultPolicy() Policy {
	return Policy{
		Fields:   []string{lookup.FieldPdfLink, lookup.FieldSafetySheetLink},
		Required: []string{lookup.FieldPdfLink},
	}
}

func (p Policy) Validate() error {
	if len(p.Fields) == 0 {
		return errors.New("output needs at least one field")
	}
	if len(p.Required) == 0 {
		return errors.New("output needs at least one required field")
	}
	for _, name := range p.Required {
		if !slices.Contains(p.Fields, name) {
			return fmt.Errorf("required field %q is not an output field", name)
		}
	}
	return nil
}

// Header returns the output column names.
func (p Policy) Header() []string {
	return append([]string{IdentifierColumn}, p.Fields...)
}

// RowFor returns the row to write for an outcome, ok is false when nothing
// should be written: the outcome was not Found or every required field is empty.
func (p Policy) RowFor(outcome lookup.Outcome) (Row, bool) {
	if outcome.Classification != lookup.ClassFound {
		return Row{}, false
	}
	accepted := false
	for _, name := range p.Required {
		if outcome.Field(name) != "" {
			accepted = true
			break
		}
	}
	if !accepted {
		return Row{}, false
	}

	row := Row{
		Identifier: outcome.Identifier,
		Values:     make([]string, len(p.Fields)),
	}
	for i, name := range p.Fields {
		row.Values[i] = outcome.Field(name)
	}
	return row, true
}
