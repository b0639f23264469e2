package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woxQAQ/plugin-bridge/pkg/protocol"
	"go.uber.org/zap/zaptest"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "db", "history.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func message(pluginID, content string) protocol.HistoryMessage {
	return protocol.HistoryMessage{
		MessageType: "normal",
		Status:      "completed",
		Content:     content,
		PluginID:    pluginID,
		Role:        "user",
	}
}

func TestAppendFillsDefaults(t *testing.T) {
	s := openStore(t)
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	stored, err := s.Append(context.Background(), message("echo", "hi"))
	require.NoError(t, err)
	assert.Len(t, stored.ID, 36)
	assert.Equal(t, "2024-05-01T12:00:00Z", stored.CreatedAt)

	got, err := s.List(context.Background(), "echo", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, stored, got[0])
}

func TestListLatestInOrder(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Append(ctx, message("echo", fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
	}
	_, err := s.Append(ctx, message("other", "elsewhere"))
	require.NoError(t, err)

	got, err := s.List(ctx, "echo", 3)
	require.NoError(t, err)
	contents := make([]string, 0, len(got))
	for _, m := range got {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"m2", "m3", "m4"}, contents)

	all, err := s.List(ctx, "echo", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestListEmpty(t *testing.T) {
	s := openStore(t)

	got, err := s.List(context.Background(), "nobody", 10)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAppendDuplicateID(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	m := message("echo", "once")
	m.ID = "fixed"
	_, err := s.Append(ctx, m)
	require.NoError(t, err)
	_, err = s.Append(ctx, m)
	assert.Error(t, err)
}

func TestAppendRequiresPlugin(t *testing.T) {
	s := openStore(t)
	_, err := s.Append(context.Background(), message("", "orphan"))
	assert.Error(t, err)
}

func TestClear(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, message("echo", "a"))
	require.NoError(t, err)
	_, err = s.Append(ctx, message("other", "b"))
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx, "echo"))

	got, err := s.List(ctx, "echo", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	got, err = s.List(ctx, "other", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestClosedStore(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.List(context.Background(), "echo", 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Append(context.Background(), message("echo", "late"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := Open(ctx, path, zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = s.Append(ctx, message("echo", "kept"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()

	got, err := s.List(ctx, "echo", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "kept", got[0].Content)
}
