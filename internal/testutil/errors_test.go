package testutil

import (
	"errors"
	"fmt"
	"testing"
)

func TestMockErrorsAreDistinctSentinels(t *testing.T) {
	all := []error{
		ErrMockNetwork,
		ErrMockThrottled,
		ErrMockStorageUnavailable,
		ErrMockNotifierDown,
		ErrMockDispatch,
	}

	for i, a := range all {
		wrapped := fmt.Errorf("context: %w", a)
		if !errors.Is(wrapped, a) {
			t.Errorf("%v should match through wrapping", a)
		}
		for j, b := range all {
			if i != j && errors.Is(a, b) {
				t.Errorf("%v must not match %v", a, b)
			}
		}
	}
}
