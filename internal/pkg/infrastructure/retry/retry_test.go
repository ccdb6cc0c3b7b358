package retry

import (
	"context"
	"errors"
	"testing"

	"github.com/matryer/is"
)

func TestReturnsOnFirstSuccess(t *testing.T) {
	is := is.New(t)

	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return nil
	})

	is.NoErr(err)
	is.Equal(calls, 1)
}

func TestRetriesUntilSuccess(t *testing.T) {
	is := is.New(t)

	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})

	is.NoErr(err)
	is.Equal(calls, 2)
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	is := is.New(t)

	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return errors.New("still broken")
	})

	is.True(err != nil)
	is.Equal(calls, maxAttempts)
}
