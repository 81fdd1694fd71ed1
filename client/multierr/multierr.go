package multierr

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/juju/errors"
)

// MultiErr collects errors from a sequence of operations that should all be
// attempted, such as closing several resources.
type MultiErr struct {
	errors []error
}

func New() *MultiErr {
	return &MultiErr{}
}

// Add ignores nil errors.
func (m *MultiErr) Add(err error) {
	if err != nil {
		m.errors = append(m.errors, err)
	}
}

// Len returns the number of collected errors.
func (m *MultiErr) Len() int {
	return len(m.errors)
}

// Err returns nil, the single collected error, or an error listing the stacks
// of all collected errors.
func (m *MultiErr) Err() error {
	switch len(m.errors) {
	case 0:
		return nil
	case 1:
		return m.errors[0]
	}

	var sb strings.Builder

	for i, err := range m.errors {
		if i > 0 {
			sb.WriteString("\n")
		}

		fmt.Fprintf(&sb, "%d. %s", i+1, errors.ErrorStack(err))
	}

	return errors.Errorf("multiple errors:\n%s", sb.String())
}

// Is reports whether the cause of err matches target.
func Is(err, target error) bool {
	return stderrors.Is(errors.Cause(err), target)
}
