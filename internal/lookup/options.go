package lookup

import (
	"errors"
	"fmt"
	"time"

	"gtinlookup/internal/driver"
)

type FieldKind string

const (
	// FieldAttribute reads Attribute of the first element matching Selector.
	FieldAttribute FieldKind = "attribute"
	// FieldText reads the text of the first element matching Selector.
	FieldText FieldKind = "text"
	// FieldLink finds the first anchor inside the Selector container whose text contains Phrase.
	FieldLink FieldKind = "link"
)

const (
	FieldTitle            = "title"
	FieldResponsibleParty = "responsible_party"
	FieldPdfLink          = "pdf_link"
	FieldSafetySheetLink  = "safety_sheet_link"
)

type Field struct {
	Name      string    `json:"name"`
	Kind      FieldKind `json:"kind"`
	Selector  string    `json:"selector"`
	Attribute string    `json:"attribute"`
	Phrase    string    `json:"phrase"`
}

func (f Field) validate() error {
	if f.Name == "" {
		return errors.New("field without a name")
	}
	if f.Selector == "" {
		return fmt.Errorf("field %s: selector is required", f.Name)
	}
	switch f.Kind {
	case FieldAttribute:
		if f.Attribute == "" {
			return fmt.Errorf("field %s: attribute is required", f.Name)
		}
	case FieldText:
	case FieldLink:
		if f.Phrase == "" {
			return fmt.Errorf("field %s: phrase is required", f.Name)
		}
	default:
		return fmt.Errorf("field %s: unknown kind %q", f.Name, f.Kind)
	}
	return nil
}

// Options parameterizes the workflow for one site, layout differences between
// sites are expressed only through these selectors, phrases and timeouts.
type Options struct {
	Url   string
	Ready driver.ReadyCondition

	SearchBox     string
	ResultsMarker string
	// ResultContainer must exist next to the results marker for a lookup to
	// count as found, empty disables the check.
	ResultContainer string
	NoResultsMarker string
	NoResultsPhrase string

	Fields []Field

	NavigationTimeout time.Duration
	WaitTimeout       time.Duration
	// SettleDelay is waited after a result is classified as found and before
	// fields are read, the site renders parts of the result asynchronously.
	SettleDelay time.Duration
}

func (o Options) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"url", o.Url},
		{"search_box", o.SearchBox},
		{"results_marker", o.ResultsMarker},
		{"no_results_marker", o.NoResultsMarker},
		{"no_results_phrase", o.NoResultsPhrase},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}
	if o.WaitTimeout <= 0 || o.NavigationTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if o.SettleDelay < 0 {
		return errors.New("settle delay must not be negative")
	}

	seen := map[string]bool{}
	for _, f := range o.Fields {
		if err := f.validate(); err != nil {
			return err
		}
		if seen[f.Name] {
			return fmt.Errorf("field %s is defined twice", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// FieldNames returns the configured field names in order.
func (o Options) FieldNames() []string {
	names := make([]string, len(o.Fields))
	for i, f := range o.Fields {
		names[i] = f.Name
	}
	return names
}

// DefaultFields are the fields read from an ecoinform product page.
func DefaultFields() []Field {
	return []Field{
		{
			Name:      FieldTitle,
			Kind:      FieldAttribute,
			Selector:  `meta[name="title"]`,
			Attribute: "content",
		},
		{
			Name:     FieldResponsibleParty,
			Kind:     FieldText,
			Selector: "div.dval div.div_tval.mid_1188 b.tv_name + *",
		},
		{
			Name:     FieldPdfLink,
			Kind:     FieldLink,
			Selector: ".produkt",
			Phrase:   "pdf-Datenblatt",
		},
		{
			Name:     FieldSafetySheetLink,
			Kind:     FieldLink,
			Selector: ".produkt",
			Phrase:   "Sicherheitsdatenblatt",
		},
	}
}

// DefaultOptions targets www.ecoinform.de.
func DefaultOptions() Options {
	return Options{
		Url:               "https://www.ecoinform.de/",
		Ready:             driver.ReadyNetworkIdle,
		SearchBox:         "#suche",
		ResultsMarker:     ".produkt",
		ResultContainer:   "div.dval",
		NoResultsMarker:   ".keine_treffer",
		NoResultsPhrase:   "keine Produkte gefunden",
		Fields:            DefaultFields(),
		NavigationTimeout: 60 * time.Second,
		WaitTimeout:       30 * time.Second,
		SettleDelay:       2 * time.Second,
	}
}
