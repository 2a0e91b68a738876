package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCursors(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	cursors := NewCursors(db)

	// never drained collections start at the zero cursor
	cursor, err := cursors.Get("blog")
	require.NoError(err)
	require.True(cursor.Watermark.IsZero())
	require.Empty(cursor.LastPath)

	first := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(cursors.Put("blog", first, "/blog/a"))
	cursor, err = cursors.Get("blog")
	require.NoError(err)
	require.True(cursor.Watermark.Equal(first))
	require.Equal("/blog/a", cursor.LastPath)

	// advancing overwrites the previous cursor
	second := first.Add(24 * time.Hour)
	require.NoError(cursors.Put("blog", second, "/blog/b"))
	cursor, err = cursors.Get("blog")
	require.NoError(err)
	require.True(cursor.Watermark.Equal(second))
	require.Equal("/blog/b", cursor.LastPath)

	// entries published at the same instant advance only the path
	require.NoError(cursors.Put("blog", second, "/blog/c"))
	cursor, err = cursors.Get("blog")
	require.NoError(err)
	require.True(cursor.Watermark.Equal(second))
	require.Equal("/blog/c", cursor.LastPath)

	// collections are independent
	cursor, err = cursors.Get("notes")
	require.NoError(err)
	require.True(cursor.Watermark.IsZero())
}
