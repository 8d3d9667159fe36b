package player

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/jukebox/internal/media"
	"github.com/keshon/jukebox/internal/music/resolver"
)

type fakeVoice struct {
	guild   string
	channel string
	frames  chan []byte
	packets chan *discordgo.Packet
	closed  atomic.Int32
}

func (v *fakeVoice) GuildID() string                   { return v.guild }
func (v *fakeVoice) ChannelID() string                 { return v.channel }
func (v *fakeVoice) Speaking(bool) error               { return nil }
func (v *fakeVoice) OpusFrames() chan<- []byte         { return v.frames }
func (v *fakeVoice) Packets() <-chan *discordgo.Packet { return v.packets }

func (v *fakeVoice) Close() error {
	v.closed.Add(1)
	return nil
}

type fakeJoiner struct {
	joins atomic.Int32
	err   error
}

func (j *fakeJoiner) Join(_ context.Context, guildID, channelID string) (Voice, error) {
	if j.err != nil {
		return nil, j.err
	}
	j.joins.Add(1)
	return &fakeVoice{
		guild:   guildID,
		channel: channelID,
		frames:  make(chan []byte, 64),
		packets: make(chan *discordgo.Packet, 8),
	}, nil
}

type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, query string) (resolver.Track, error) {
	if query == "missing" {
		return resolver.Track{}, resolver.ErrNoResults
	}
	return resolver.Track{Title: query, VideoID: query, Source: resolver.SourceYouTube}, nil
}

type fakeOpener struct {
	mu      sync.Mutex
	writers map[string]*io.PipeWriter
	fail    map[string]error
	opened  chan string
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{
		writers: map[string]*io.PipeWriter{},
		fail:    map[string]error{},
		opened:  make(chan string, 16),
	}
}

func (o *fakeOpener) Open(_ context.Context, t resolver.Track) (io.ReadCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.fail[t.Title]; err != nil {
		return nil, err
	}
	r, w := io.Pipe()
	o.writers[t.Title] = w
	o.opened <- t.Title
	return r, nil
}

// end finishes a track's stream, with err as a read failure when non-nil.
func (o *fakeOpener) end(title string, err error) {
	o.mu.Lock()
	w := o.writers[title]
	o.mu.Unlock()
	_ = w.CloseWithError(err)
}

// feed writes data into a track's stream in the background.
func (o *fakeOpener) feed(title string, data []byte) {
	o.mu.Lock()
	w := o.writers[title]
	o.mu.Unlock()
	go func() { _, _ = w.Write(data) }()
}

// oneFrameWebM is a Segment holding one Cluster with a single SimpleBlock
// whose Opus payload is 0x01.
var oneFrameWebM = []byte{
	0x18, 0x53, 0x80, 0x67, 0x8F,
	0x1F, 0x43, 0xB6, 0x75, 0x8A,
	0xE7, 0x81, 0x00,
	0xA3, 0x85, 0x81, 0x00, 0x00, 0x80, 0x01,
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting")
	}
	var zero T
	return zero
}

type fixture struct {
	m      *Manager
	joiner *fakeJoiner
	opener *fakeOpener
	ends   chan media.TrackEnd
	sub    media.Subscription
	conn   media.Connection
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{joiner: &fakeJoiner{}, opener: newFakeOpener(), ends: make(chan media.TrackEnd, 16)}
	f.m = NewManager(f.joiner, fakeResolver{}, f.opener)
	t.Cleanup(func() { f.m.Shutdown(context.Background()) })

	conn, err := f.m.Connect(context.Background(), "g1", "vc1")
	require.NoError(t, err)
	f.conn = conn
	f.sub = f.m.OnTrackEnd("g1", func(ev media.TrackEnd) { f.ends <- ev })
	return f
}

func TestPlayStartsAndQueues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.m.Play(ctx, f.conn, "one")
	require.NoError(t, err)
	assert.Equal(t, "one", waitFor(t, f.opener.opened))
	assert.False(t, res.Queued)
	assert.Equal(t, media.QueueRef("g1"), res.Queue)
	assert.True(t, f.m.Playing("g1"))

	res, err = f.m.Play(ctx, f.conn, "two")
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.Equal(t, 1, f.m.Remaining("g1"))
}

func TestTrackEndAdvancesAndDrains(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.m.Play(ctx, f.conn, "one")
	require.NoError(t, err)
	waitFor(t, f.opener.opened)
	_, err = f.m.Play(ctx, f.conn, "two")
	require.NoError(t, err)

	f.opener.end("one", nil)
	ev := waitFor(t, f.ends)
	assert.Equal(t, "one", ev.Title)
	assert.Equal(t, 1, ev.Remaining)
	assert.NoError(t, ev.Err)
	assert.Equal(t, "two", waitFor(t, f.opener.opened))

	f.opener.end("two", errors.New("connection reset"))
	ev = waitFor(t, f.ends)
	assert.Equal(t, "two", ev.Title)
	assert.Equal(t, 0, ev.Remaining)
	var playErr *media.PlaybackError
	assert.ErrorAs(t, ev.Err, &playErr)

	assert.Eventually(t, func() bool { return !f.m.Playing("g1") }, time.Second, 5*time.Millisecond)
}

func TestMidStreamFailureReachesTrackEnd(t *testing.T) {
	f := newFixture(t)
	voice := f.conn.(*fakeVoice)

	_, err := f.m.Play(context.Background(), f.conn, "one")
	require.NoError(t, err)
	waitFor(t, f.opener.opened)

	f.opener.feed("one", oneFrameWebM)
	assert.Equal(t, []byte{0x01}, waitFor(t, voice.frames))

	reset := errors.New("connection reset")
	f.opener.end("one", reset)
	ev := waitFor(t, f.ends)
	assert.Equal(t, "one", ev.Title)
	var playErr *media.PlaybackError
	require.ErrorAs(t, ev.Err, &playErr)
	assert.Equal(t, "one", playErr.Title)
	assert.ErrorIs(t, ev.Err, reset)
}

func TestSkipMovesToNextTrack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _ = f.m.Play(ctx, f.conn, "one")
	waitFor(t, f.opener.opened)
	_, _ = f.m.Play(ctx, f.conn, "two")

	require.NoError(t, f.m.Skip(ctx, "g1"))

	ev := waitFor(t, f.ends)
	assert.Equal(t, "one", ev.Title)
	assert.Equal(t, 1, ev.Remaining)
	assert.NoError(t, ev.Err)
	assert.Equal(t, "two", waitFor(t, f.opener.opened))
	assert.True(t, f.m.Playing("g1"))
	assert.Equal(t, 0, f.m.Remaining("g1"))
}

func TestUnopenableTrackIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.opener.fail["broken"] = errors.New("403")

	_, _ = f.m.Play(ctx, f.conn, "one")
	waitFor(t, f.opener.opened)
	_, _ = f.m.Play(ctx, f.conn, "broken")
	_, _ = f.m.Play(ctx, f.conn, "three")

	f.opener.end("one", nil)
	byTitle := map[string]media.TrackEnd{}
	for i := 0; i < 2; i++ {
		ev := waitFor(t, f.ends)
		byTitle[ev.Title] = ev
	}
	assert.Equal(t, 2, byTitle["one"].Remaining)
	assert.NoError(t, byTitle["one"].Err)
	assert.Equal(t, 1, byTitle["broken"].Remaining)
	assert.Error(t, byTitle["broken"].Err)
	assert.Equal(t, "three", waitFor(t, f.opener.opened))
}

func TestStopClearsQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _ = f.m.Play(ctx, f.conn, "one")
	waitFor(t, f.opener.opened)
	_, _ = f.m.Play(ctx, f.conn, "two")

	require.NoError(t, f.m.Stop(ctx, "g1"))
	assert.False(t, f.m.Playing("g1"))
	assert.Equal(t, 0, f.m.Remaining("g1"))
	assert.False(t, f.m.Jobs().Running("playback:g1"))

	require.NoError(t, f.m.Stop(ctx, "g1"), "stopping twice is fine")

	res, err := f.m.Play(ctx, f.conn, "three")
	require.NoError(t, err)
	assert.False(t, res.Queued)
	assert.Equal(t, "three", waitFor(t, f.opener.opened))
}

func TestPlayErrorsAreTyped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.m.Play(ctx, f.conn, "missing")
	var resErr *media.ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.ErrorIs(t, err, resolver.ErrNoResults)

	f.opener.fail["locked"] = errors.New("age restricted")
	_, err = f.m.Play(ctx, f.conn, "locked")
	var playErr *media.PlaybackError
	require.ErrorAs(t, err, &playErr)
	assert.Equal(t, "locked", playErr.Title)
	assert.False(t, f.m.Playing("g1"))
}

func TestConnectReusesAndReplaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	same, err := f.m.Connect(ctx, "g1", "vc1")
	require.NoError(t, err)
	assert.Same(t, f.conn, same)
	assert.Equal(t, int32(1), f.joiner.joins.Load())

	other, err := f.m.Connect(ctx, "g1", "vc2")
	require.NoError(t, err)
	assert.Equal(t, "vc2", other.ChannelID())
	assert.Equal(t, int32(1), f.conn.(*fakeVoice).closed.Load())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _ = f.m.Play(ctx, f.conn, "one")
	waitFor(t, f.opener.opened)

	require.NoError(t, f.m.Disconnect(ctx, f.conn))
	require.NoError(t, f.m.Disconnect(ctx, f.conn))
	assert.Equal(t, int32(1), f.conn.(*fakeVoice).closed.Load())
	assert.False(t, f.m.Playing("g1"))

	_, err := f.m.Play(ctx, f.conn, "two")
	var playErr *media.PlaybackError
	assert.ErrorAs(t, err, &playErr)
	assert.ErrorIs(t, err, ErrNoVoice)
}

func TestCancelledSubscriptionGetsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _ = f.m.Play(ctx, f.conn, "one")
	waitFor(t, f.opener.opened)
	f.sub.Cancel()
	f.sub.Cancel()

	f.opener.end("one", nil)
	assert.Eventually(t, func() bool { return !f.m.Playing("g1") }, time.Second, 5*time.Millisecond)
	select {
	case ev := <-f.ends:
		t.Fatalf("unexpected track end %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRecordingCountsPackets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	voice := f.conn.(*fakeVoice)

	require.NoError(t, f.m.StartRecording(ctx, "g1"))
	assert.Error(t, f.m.StartRecording(ctx, "g1"), "one recording per guild")

	voice.packets <- &discordgo.Packet{SSRC: 7, Opus: []byte{1, 2, 3}}
	voice.packets <- &discordgo.Packet{SSRC: 9, Opus: []byte{4}}

	rec, ok := f.m.Recording("g1")
	require.True(t, ok)
	assert.Eventually(t, func() bool {
		_, total := rec.Stats()
		return total == 4
	}, time.Second, 5*time.Millisecond)

	snaps := f.m.Snapshots()
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].Recording)

	require.NoError(t, f.m.StopRecording(ctx, "g1"))
	require.NoError(t, f.m.StopRecording(ctx, "g1"))
	_, ok = f.m.Recording("g1")
	assert.False(t, ok)

	assert.ErrorIs(t, f.m.StartRecording(ctx, "nope"), ErrNoVoice)
}

func TestSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _ = f.m.Play(ctx, f.conn, "one")
	waitFor(t, f.opener.opened)
	_, _ = f.m.Play(ctx, f.conn, "two")

	snaps := f.m.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, Snapshot{
		GuildID:   "g1",
		ChannelID: "vc1",
		Playing:   true,
		Current:   "one",
		Queue:     []string{"two"},
	}, snaps[0])
}
