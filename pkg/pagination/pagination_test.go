package pagination

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, DefaultLimit, NormalizeLimit(-3))
	require.Equal(t, 7, NormalizeLimit(7))
	require.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	require.Equal(t, 8, LimitWithBuffer(7))
}

func TestCursorRoundTrip(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	in := Cursor{CreatedAt: time.Date(2026, 5, 1, 10, 0, 0, 123456789, loc), ID: uuid.New()}

	token := EncodeCursor(in)
	require.NotContains(t, token, "=")

	out, err := ParseCursor(token)
	require.NoError(t, err)
	require.True(t, out.CreatedAt.Equal(in.CreatedAt))
	require.Equal(t, in.ID, out.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	for _, token := range []string{"%%%", "bm90LWpzb24", EncodeCursor(Cursor{})} {
		_, err := ParseCursor(token)
		require.True(t, errors.Is(err, ErrInvalidCursor), "token %q: %v", token, err)
	}
	cursor, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, cursor)
}

func TestTrim(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]Cursor, 4)
	for i := range rows {
		rows[i] = Cursor{CreatedAt: base.Add(-time.Duration(i) * time.Minute), ID: uuid.New()}
	}
	identity := func(c Cursor) Cursor { return c }

	page, next := Trim(rows, 3, identity)
	require.Len(t, page, 3)
	require.NotNil(t, next)
	require.Equal(t, rows[3].ID, next.ID)

	page, next = Trim(rows[:2], 3, identity)
	require.Len(t, page, 2)
	require.Nil(t, next)
}

func TestOffsetHelpers(t *testing.T) {
	require.Equal(t, OffsetParams{Limit: 10, Offset: 20}, FromPage(3, 10))
	require.Equal(t, OffsetParams{Limit: DefaultLimit, Offset: 0}, FromPage(0, 0))
	require.Equal(t, OffsetParams{Limit: 5, Offset: 0}, OffsetParams{Limit: 5, Offset: -2}.Normalize())

	info := NewPageInfo(2, 10, 21)
	require.Equal(t, 3, info.TotalPages)
	require.Equal(t, 2, info.Page)
	require.Zero(t, NewPageInfo(1, 10, 0).TotalPages)
}
