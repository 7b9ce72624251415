package dbretry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/robalyx/legalgate/internal/database/dbretry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDomain = errors.New("domain failure")

func TestIsRetryableError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), want: false},
		{name: "connection reset", err: errors.New("read tcp: connection reset by peer"), want: true},
		{name: "refused", err: errors.New("dial tcp 127.0.0.1:5432: connection refused"), want: true},
		{name: "domain", err: errDomain, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, dbretry.IsRetryableError(tt.err))
		})
	}
}

func TestNoResultPreservesPermanentError(t *testing.T) {
	t.Parallel()

	calls := 0
	err := dbretry.NoResult(t.Context(), func(context.Context) error {
		calls++
		return fmt.Errorf("failed to publish: %w", errDomain)
	})

	require.Error(t, err)
	require.ErrorIs(t, err, errDomain)
	assert.Equal(t, 1, calls)
}

func TestOperationRetriesTransientErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	result, err := dbretry.Operation(t.Context(), func(context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("write: broken pipe")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 2, calls)
}

func TestIsUniqueViolationIgnoresOtherErrors(t *testing.T) {
	t.Parallel()

	assert.False(t, dbretry.IsUniqueViolation(errDomain, ""))
	assert.False(t, dbretry.IsUniqueViolation(nil, "legal_documents_type_version_key"))
}
