package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/keshon/datastore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "datastore.json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCommandHistoryIsCapped(t *testing.T) {
	s := newTestStorage(t)

	for i := 0; i < commandHistoryLimit+5; i++ {
		require.NoError(t, s.AppendCommandToHistory("g1", CommandHistoryRecord{
			Command:  "play",
			Param:    fmt.Sprintf("song %d", i),
			Datetime: time.Now(),
		}))
	}

	list, err := s.FetchCommandHistory("g1")
	require.NoError(t, err)
	require.Len(t, list, commandHistoryLimit)
	assert.Equal(t, "song 5", list[0].Param)
	assert.Equal(t, fmt.Sprintf("song %d", commandHistoryLimit+4), list[len(list)-1].Param)
}

func TestHistoryIsPerGuild(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.AppendCommandToHistory("g1", CommandHistoryRecord{Command: "stop"}))
	require.NoError(t, s.AppendTrackToHistory("g2", TrackHistoryRecord{Title: "song"}))

	cmds, err := s.FetchCommandHistory("g2")
	require.NoError(t, err)
	assert.Empty(t, cmds)

	tracks, err := s.FetchTrackHistory("g2")
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "song", tracks[0].Title)

	cmds, err = s.FetchCommandHistory("g1")
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "stop", cmds[0].Command)
}

func TestTrackHistoryIsCapped(t *testing.T) {
	s := newTestStorage(t)

	for i := 0; i < tracksHistoryLimit*2; i++ {
		require.NoError(t, s.AppendTrackToHistory("g1", TrackHistoryRecord{Title: fmt.Sprint(i)}))
	}

	tracks, err := s.FetchTrackHistory("g1")
	require.NoError(t, err)
	assert.Len(t, tracks, tracksHistoryLimit)
}

func TestHistorySurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datastore.json")

	s, err := New(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.AppendTrackToHistory("g1", TrackHistoryRecord{Title: "song", URL: "https://example.com/song"}))
	require.NoError(t, s.AppendCommandToHistory("g1", CommandHistoryRecord{Command: "play", Outcome: "ok"}))

	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}

	reopened, err := New(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	tracks, err := reopened.FetchTrackHistory("g1")
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "https://example.com/song", tracks[0].URL)

	cmds, err := reopened.FetchCommandHistory("g1")
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "ok", cmds[0].Outcome)
}

func TestWritesFailAfterClose(t *testing.T) {
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "datastore.json"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.AppendCommandToHistory("g1", CommandHistoryRecord{Command: "stop"})
	assert.ErrorIs(t, err, datastore.ErrClosed)
}
