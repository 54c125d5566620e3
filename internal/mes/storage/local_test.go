package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir(), "/uploads/drawings/")
	require.NoError(t, err)
	ctx := context.Background()

	handle, err := s.Save(ctx, "Shaft.PDF", strings.NewReader("%PDF-1.4"), 8, "application/pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(handle, "drawings/"))
	assert.True(t, strings.HasSuffix(handle, ".pdf"))
	assert.Equal(t, "/uploads/drawings/"+handle, s.URL(handle))

	rc, err := s.Open(ctx, handle)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "%PDF-1.4", string(body))

	require.NoError(t, s.Remove(ctx, handle))
	_, err = s.Open(ctx, handle)
	assert.ErrorIs(t, err, ErrNotFound)

	// 重复删除不报错
	assert.NoError(t, s.Remove(ctx, handle))
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir(), "/uploads")
	require.NoError(t, err)

	for _, h := range []string{"../etc/passwd", "/etc/passwd", "a/../../b", ""} {
		_, err := s.Open(context.Background(), h)
		assert.ErrorIs(t, err, ErrNotFound, h)
	}
}
