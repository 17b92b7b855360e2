package lookup

import (
	"context"
	"fmt"

	"gtinlookup/internal/components/telemetry"
	"gtinlookup/internal/driver"
)

type extractor struct {
	fields []Field
	tel    telemetry.API
}

// extract reads every field independently, a field that cannot be read is
// recorded as an empty value and does not affect the others.
func (e extractor) extract(ctx context.Context, session driver.Session, identifier string) map[string]string {
	values := make(map[string]string, len(e.fields))
	for _, field := range e.fields {
		value, err := e.extractField(ctx, session, field)
		if err != nil {
			values[field.Name] = ""
			e.tel.ReportInfo(
				"field not found",
				"gtin", identifier,
				"field", field.Name,
				"reason", err,
			)
			continue
		}
		values[field.Name] = value
		e.tel.ReportInfo(
			"field found",
			"gtin", identifier,
			"field", field.Name,
			"value", value,
		)
	}
	return values
}

func (e extractor) extractField(ctx context.Context, session driver.Session, field Field) (string, error) {
	var (
		value string
		ok    bool
		err   error
	)
	switch field.Kind {
	case FieldAttribute:
		value, ok, err = session.ReadAttribute(ctx, field.Selector, field.Attribute)
	case FieldText:
		value, ok, err = session.ReadText(ctx, field.Selector)
	case FieldLink:
		value, ok, err = session.FindLinkByText(ctx, field.Selector, field.Phrase)
	default:
		return "", fmt.Errorf("unknown field kind %q", field.Kind)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", field.Selector, err)
	}
	if !ok || value == "" {
		switch field.Kind {
		case FieldLink:
			return "", fmt.Errorf("%w: no link containing %q in %s", ErrFieldMissing, field.Phrase, field.Selector)
		case FieldAttribute:
			return "", fmt.Errorf("%w: %s[%s]", ErrFieldMissing, field.Selector, field.Attribute)
		}
		return "", fmt.Errorf("%w: %s", ErrFieldMissing, field.Selector)
	}
	return value, nil
}
