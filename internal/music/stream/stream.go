// Package stream forwards Opus packets from a WebM container to a voice
// connection without decoding them.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/remko/go-mkvparse"
)

// Sink receives Opus frames, typically a discordgo voice connection.
type Sink interface {
	Speaking(b bool) error
	OpusFrames() chan<- []byte
}

// Demux parses a WebM stream and calls emit with the payload of every
// SimpleBlock. An error from emit aborts parsing and is returned.
func Demux(r io.Reader, emit func(frame []byte) error) error {
	h := &blockHandler{emit: emit}
	err := mkvparse.Parse(&abortReader{r: r, h: h}, h)
	if h.err != nil {
		return h.err
	}
	if err != nil {
		return fmt.Errorf("webm parse: %w", err)
	}
	return nil
}

// abortReader fails once the handler has recorded an error. The parser
// ignores errors returned from HandleBinary, so this is what stops it.
type abortReader struct {
	r io.Reader
	h *blockHandler
}

func (a *abortReader) Read(p []byte) (int, error) {
	if a.h.err != nil {
		return 0, a.h.err
	}
	return a.r.Read(p)
}

// Play sends every frame of r to sink until the stream ends or ctx is
// cancelled. A cancelled ctx is reported as ctx.Err().
func Play(ctx context.Context, r io.Reader, sink Sink) error {
	if err := sink.Speaking(true); err != nil {
		return fmt.Errorf("speaking: %w", err)
	}
	defer func() { _ = sink.Speaking(false) }()

	out := sink.OpusFrames()
	err := Demux(r, func(frame []byte) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- frame:
			return nil
		case <-time.After(sendTimeout):
			return ErrSinkStalled
		}
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// ErrSinkStalled is returned when the sink stops accepting frames.
var ErrSinkStalled = errors.New("voice connection stopped accepting audio")

// sendTimeout bounds how long a single frame may wait for the sink.
var sendTimeout = 5 * time.Second

type blockHandler struct {
	emit func([]byte) error
	err  error
}

func (h *blockHandler) HandleMasterBegin(mkvparse.ElementID, mkvparse.ElementInfo) (bool, error) {
	return h.err == nil, h.err
}

func (h *blockHandler) HandleMasterEnd(mkvparse.ElementID, mkvparse.ElementInfo) error {
	return h.err
}

func (h *blockHandler) HandleString(mkvparse.ElementID, string, mkvparse.ElementInfo) error {
	return h.err
}

func (h *blockHandler) HandleInteger(mkvparse.ElementID, int64, mkvparse.ElementInfo) error {
	return h.err
}

func (h *blockHandler) HandleFloat(mkvparse.ElementID, float64, mkvparse.ElementInfo) error {
	return h.err
}

func (h *blockHandler) HandleDate(mkvparse.ElementID, time.Time, mkvparse.ElementInfo) error {
	return h.err
}

// HandleBinary emits SimpleBlock payloads. After the first emit error every
// later call is a no-op.
func (h *blockHandler) HandleBinary(id mkvparse.ElementID, value []byte, _ mkvparse.ElementInfo) error {
	if h.err != nil || id != mkvparse.SimpleBlockElement {
		return h.err
	}
	frame, ok := blockPayload(value)
	if !ok {
		return nil
	}
	if err := h.emit(frame); err != nil {
		h.err = err
		return err
	}
	return nil
}

// blockPayload strips the SimpleBlock header: the track number (EBML varint),
// a 16 bit timecode and one flags byte. The returned slice is a copy.
func blockPayload(block []byte) ([]byte, bool) {
	if len(block) == 0 {
		return nil, false
	}
	n := 1
	for mask := byte(0x80); n <= 8 && block[0]&mask == 0; mask >>= 1 {
		n++
	}
	header := n + 3
	if n > 8 || len(block) <= header {
		return nil, false
	}
	frame := make([]byte, len(block)-header)
	copy(frame, block[header:])
	return frame, true
}
