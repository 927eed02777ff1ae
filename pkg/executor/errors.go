package executor

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// ItemError records the failure of one collection element.
type ItemError struct {
	// Index is the element's position in the original input collection.
	Index int

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

// Unwrap returns the underlying error.
func (e *ItemError) Unwrap() error {
	return e.Err
}

// ItemErrors extracts the per-item failures from an error returned by Run.
// Errors that are not item failures are ignored.
func ItemErrors(err error) []*ItemError {
	if err == nil {
		return nil
	}

	var items []*ItemError
	for _, e := range multierr.Errors(err) {
		var item *ItemError
		if errors.As(e, &item) {
			items = append(items, item)
		}
	}
	return items
}
