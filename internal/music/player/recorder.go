package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/keshon/jukebox/internal/media"
	"github.com/keshon/jukebox/pkg/jobmgr"
)

// Recording tallies voice packets received while the bot idles in a channel.
// Audio is counted per speaker, never decoded or stored.
type Recording struct {
	GuildID string
	Started time.Time

	mu       sync.Mutex
	packets  map[uint32]int
	bytes    int
	finished time.Time
}

// Stats returns packets per SSRC and the total payload size.
func (r *Recording) Stats() (map[uint32]int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uint32]int, len(r.packets))
	for k, v := range r.packets {
		out[k] = v
	}
	return out, r.bytes
}

func (r *Recording) add(ssrc uint32, n int) {
	r.mu.Lock()
	r.packets[ssrc]++
	r.bytes += n
	r.mu.Unlock()
}

func recordJob(guildID string) string { return "record:" + guildID }

// StartRecording starts draining the guild's received voice packets.
func (m *Manager) StartRecording(_ context.Context, guildID string) error {
	p, ok := m.player(media.QueueRef(guildID))
	if !ok {
		return ErrNoVoice
	}
	v := p.Voice()
	if v == nil {
		return ErrNoVoice
	}
	packets := v.Packets()
	if packets == nil {
		return errors.New("voice connection does not receive audio")
	}

	rec := &Recording{GuildID: guildID, Started: time.Now(), packets: make(map[uint32]int)}
	_, err := m.jobs.StartAsync(recordJob(guildID), func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case pkt, ok := <-packets:
				if !ok {
					return nil
				}
				if pkt != nil {
					rec.add(pkt.SSRC, len(pkt.Opus))
				}
			}
		}
	})
	if err != nil {
		return fmt.Errorf("start recording: %w", err)
	}

	m.recMu.Lock()
	m.recordings[guildID] = rec
	m.recMu.Unlock()

	m.log.Info().Str("guild", guildID).Msg("recording started")
	p.emit(StatusRecording, "")
	return nil
}

// StopRecording stops the guild's recording. Stopping when nothing records
// is not an error.
func (m *Manager) StopRecording(_ context.Context, guildID string) error {
	err := m.jobs.Stop(recordJob(guildID))
	if errors.Is(err, jobmgr.ErrNotRunning) {
		return nil
	}
	if err != nil {
		return err
	}

	m.recMu.Lock()
	rec := m.recordings[guildID]
	delete(m.recordings, guildID)
	m.recMu.Unlock()

	if rec != nil {
		rec.mu.Lock()
		rec.finished = time.Now()
		speakers, total := len(rec.packets), rec.bytes
		took := rec.finished.Sub(rec.Started)
		rec.mu.Unlock()
		m.log.Info().Str("guild", guildID).Int("speakers", speakers).Int("bytes", total).Dur("took", took).Msg("recording stopped")
	}
	return nil
}

// Recording returns the guild's active recording.
func (m *Manager) Recording(guildID string) (*Recording, bool) {
	m.recMu.Lock()
	defer m.recMu.Unlock()
	r, ok := m.recordings[guildID]
	return r, ok
}
