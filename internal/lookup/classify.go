package lookup

import (
	"context"
	"errors"
	"fmt"

	"gtinlookup/internal/driver"
	"gtinlookup/lib/textutil"
)

// classification is what the classifier decided, reason is only set for
// ClassStructureMissing, kind and err only for ClassError.
type classification struct {
	class  Classification
	reason string
	kind   ErrorKind
	err    error
}

type classifier struct {
	opts Options
}

func (c classifier) fail(kind ErrorKind, err error) classification {
	return classification{class: ClassError, kind: kind, err: err}
}

// classify waits for either marker and decides what the search returned.
// A no-results marker alone does not prove that nothing was found, its text
// has to contain the configured phrase as well.
func (c classifier) classify(ctx context.Context, session driver.Session) classification {
	markers := fmt.Sprintf("%s, %s", c.opts.ResultsMarker, c.opts.NoResultsMarker)
	err := session.AwaitSelector(ctx, markers, c.opts.WaitTimeout)
	if errors.Is(err, driver.ErrTimeout) {
		return c.fail(KindTimeout, err)
	}
	if err != nil {
		return c.fail(KindUnexpected, err)
	}

	noResults, err := session.Exists(ctx, c.opts.NoResultsMarker)
	if err != nil {
		return c.fail(KindUnexpected, err)
	}
	if noResults {
		text, _, err := session.ReadText(ctx, c.opts.NoResultsMarker)
		if err != nil {
			return c.fail(KindUnexpected, err)
		}
		if textutil.ContainsPhrase(text, c.opts.NoResultsPhrase) {
			return classification{class: ClassNoResult}
		}
		return classification{
			class:  ClassStructureMissing,
			reason: fmt.Sprintf("no-results marker text %q does not contain %q", text, c.opts.NoResultsPhrase),
		}
	}

	results, err := session.Exists(ctx, c.opts.ResultsMarker)
	if err != nil {
		return c.fail(KindUnexpected, err)
	}
	if !results {
		return classification{
			class:  ClassStructureMissing,
			reason: fmt.Sprintf("marker appeared but neither %s nor %s is present", c.opts.ResultsMarker, c.opts.NoResultsMarker),
		}
	}

	if c.opts.ResultContainer != "" {
		container, err := session.Exists(ctx, c.opts.ResultContainer)
		if err != nil {
			return c.fail(KindUnexpected, err)
		}
		if !container {
			return classification{
				class:  ClassStructureMissing,
				reason: fmt.Sprintf("result container %s is absent", c.opts.ResultContainer),
			}
		}
	}

	return classification{class: ClassFound}
}
