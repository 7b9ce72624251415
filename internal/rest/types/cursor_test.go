package types_test

import (
	"testing"
	"time"

	dbTypes "github.com/robalyx/legalgate/internal/database/types"
	"github.com/robalyx/legalgate/internal/rest/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	t.Parallel()

	cursor := &dbTypes.AuditCursor{
		Timestamp: time.Date(2025, 5, 1, 12, 30, 0, 123456789, time.UTC),
		Sequence:  4821,
	}

	decoded, err := types.DecodeCursor(types.EncodeCursor(cursor))
	require.NoError(t, err)
	assert.Equal(t, cursor, decoded)
}

func TestDecodeCursor(t *testing.T) {
	t.Parallel()

	first, err := types.DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, first)

	for _, bad := range []string{"abc", "zz.", ".1", "1.-1", "!!.1"} {
		_, err := types.DecodeCursor(bad)
		require.ErrorIs(t, err, types.ErrInvalidCursor, bad)
	}
	assert.Empty(t, types.EncodeCursor(nil))
}
