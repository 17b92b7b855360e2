package lookup

import (
	"errors"
	"fmt"
	"time"
)

type Classification int

const (
	ClassNoResult Classification = iota
	ClassFound
	ClassStructureMissing
	ClassError
)

var classificationNames = map[Classification]string{
	ClassNoResult:         "no_result",
	ClassFound:            "found",
	ClassStructureMissing: "structure_missing",
	ClassError:            "error",
}

func (c Classification) String() string {
	name, ok := classificationNames[c]
	if !ok {
		return fmt.Sprintf("classification(%d)", int(c))
	}
	return name
}

func ParseClassification(s string) (Classification, error) {
	for c, name := range classificationNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown classification %q", s)
}

// Classifications lists every classification in display order.
func Classifications() []Classification {
	return []Classification{ClassFound, ClassNoResult, ClassStructureMissing, ClassError}
}

type ErrorKind int

const (
	KindNavigation ErrorKind = iota
	KindSearchFormMissing
	KindTimeout
	KindUnexpected
)

func (k ErrorKind) String() string {
	switch k {
	case KindNavigation:
		return "navigation"
	case KindSearchFormMissing:
		return "search_form_missing"
	case KindTimeout:
		return "timeout"
	case KindUnexpected:
		return "unexpected"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ErrFieldMissing is the reason recorded when a field cannot be extracted, it
// never leaves the workflow.
var ErrFieldMissing = errors.New("field not found on page")

// Error is why a lookup ended in ClassError.
type Error struct {
	Kind ErrorKind
	// State is the state the workflow was in when it failed.
	State State
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (in %s): %v", e.Kind, e.State, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Outcome is the immutable result of one lookup.
type Outcome struct {
	Identifier     string
	Classification Classification
	// Fields holds every configured field when Found, missing fields are empty strings.
	Fields map[string]string
	// Err is only set when Classification is ClassError.
	Err *Error
	// Reason explains a ClassStructureMissing outcome.
	Reason  string
	State   State
	Elapsed time.Duration
}

// Field returns the extracted value of name, empty if absent.
func (o Outcome) Field(name string) string {
	return o.Fields[name]
}
