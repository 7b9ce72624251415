package types

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/robalyx/legalgate/internal/database/types"
)

// ErrInvalidCursor is returned for cursors that were not produced by EncodeCursor.
var ErrInvalidCursor = errors.New("invalid cursor")

// EncodeCursor turns an audit cursor into an opaque query parameter.
func EncodeCursor(cursor *types.AuditCursor) string {
	if cursor == nil {
		return ""
	}
	return strconv.FormatInt(cursor.Timestamp.UnixNano(), 36) + "." + strconv.FormatInt(cursor.Sequence, 36)
}

// DecodeCursor parses a query parameter produced by EncodeCursor. Empty means the first page.
func DecodeCursor(s string) (*types.AuditCursor, error) {
	if s == "" {
		return nil, nil //nolint:nilnil // first page
	}

	ts, seq, ok := strings.Cut(s, ".")
	if !ok {
		return nil, ErrInvalidCursor
	}

	nanos, err := strconv.ParseInt(ts, 36, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	sequence, err := strconv.ParseInt(seq, 36, 64)
	if err != nil || sequence < 0 {
		return nil, ErrInvalidCursor
	}

	return &types.AuditCursor{
		Timestamp: time.Unix(0, nanos).UTC(),
		Sequence:  sequence,
	}, nil
}
