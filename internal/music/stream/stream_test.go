package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func element(id []byte, payload ...[]byte) []byte {
	body := bytes.Join(payload, nil)
	if len(body) >= 127 {
		panic("test element too large")
	}
	out := append([]byte{}, id...)
	out = append(out, 0x80|byte(len(body)))
	return append(out, body...)
}

func simpleBlock(frame ...byte) []byte {
	return element([]byte{0xA3}, []byte{0x81, 0x00, 0x00, 0x80}, frame)
}

func webm(blocks ...[]byte) []byte {
	cluster := element([]byte{0x1F, 0x43, 0xB6, 0x75},
		append([][]byte{element([]byte{0xE7}, []byte{0x00})}, blocks...)...)
	return element([]byte{0x18, 0x53, 0x80, 0x67}, cluster)
}

type fakeSink struct {
	frames   chan []byte
	speaking []bool
}

func (s *fakeSink) Speaking(b bool) error {
	s.speaking = append(s.speaking, b)
	return nil
}

func (s *fakeSink) OpusFrames() chan<- []byte { return s.frames }

func TestBlockPayload(t *testing.T) {
	frame, ok := blockPayload([]byte{0x81, 0x00, 0x10, 0x80, 0xAA, 0xBB})
	require.True(t, ok)
	assert.Equal(t, []byte{0xAA, 0xBB}, frame)

	frame, ok = blockPayload([]byte{0x40, 0x02, 0x00, 0x00, 0x80, 0xCC})
	require.True(t, ok)
	assert.Equal(t, []byte{0xCC}, frame)

	_, ok = blockPayload([]byte{0x81, 0x00, 0x00, 0x80})
	assert.False(t, ok)

	_, ok = blockPayload(nil)
	assert.False(t, ok)
}

func TestDemux(t *testing.T) {
	data := webm(simpleBlock(1, 2, 3), simpleBlock(4), simpleBlock(5, 6))

	var frames [][]byte
	err := Demux(bytes.NewReader(data), func(f []byte) error {
		frames = append(frames, f)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{1, 2, 3}, {4}, {5, 6}}, frames)
}

func TestDemuxStopsOnEmitError(t *testing.T) {
	data := webm(simpleBlock(1), simpleBlock(2))
	stop := errors.New("stop")

	calls := 0
	err := Demux(bytes.NewReader(data), func([]byte) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestPlaySendsFrames(t *testing.T) {
	sink := &fakeSink{frames: make(chan []byte, 8)}

	err := Play(context.Background(), bytes.NewReader(webm(simpleBlock(7), simpleBlock(8))), sink)
	require.NoError(t, err)

	close(sink.frames)
	var got [][]byte
	for f := range sink.frames {
		got = append(got, f)
	}
	assert.Equal(t, [][]byte{{7}, {8}}, got)
	assert.Equal(t, []bool{true, false}, sink.speaking)
}

func TestPlayCancelled(t *testing.T) {
	sink := &fakeSink{frames: make(chan []byte)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Play(ctx, bytes.NewReader(webm(simpleBlock(1))), sink)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []bool{true, false}, sink.speaking)
}

func TestDemuxReportsReadError(t *testing.T) {
	reset := errors.New("connection reset")
	r := io.MultiReader(bytes.NewReader(webm(simpleBlock(1))), iotest.ErrReader(reset))

	var frames [][]byte
	err := Demux(r, func(f []byte) error {
		frames = append(frames, f)
		return nil
	})
	assert.ErrorIs(t, err, reset)
	assert.Equal(t, [][]byte{{1}}, frames)
}

func TestPlayStalledSink(t *testing.T) {
	prev := sendTimeout
	sendTimeout = 20 * time.Millisecond
	t.Cleanup(func() { sendTimeout = prev })

	blocks := make([][]byte, 10)
	for i := range blocks {
		blocks[i] = simpleBlock(byte(i))
	}
	sink := &fakeSink{frames: make(chan []byte)}

	start := time.Now()
	err := Play(context.Background(), bytes.NewReader(webm(blocks...)), sink)
	assert.ErrorIs(t, err, ErrSinkStalled)
	assert.Less(t, time.Since(start), 5*sendTimeout, "gives up after the first stalled frame")
	assert.Equal(t, []bool{true, false}, sink.speaking)
}
