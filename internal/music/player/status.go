package player

import "github.com/rs/zerolog/log"

type PlayerStatus string

const (
	StatusPlaying   PlayerStatus = "Playing"
	StatusAdded     PlayerStatus = "Track Added"
	StatusStopped   PlayerStatus = "Playback Stopped"
	StatusSkipped   PlayerStatus = "Track Skipped"
	StatusRecording PlayerStatus = "Recording"
	StatusError     PlayerStatus = "Error"
)

func (status PlayerStatus) StringEmoji() string {
	m := map[PlayerStatus]string{
		StatusPlaying:   "▶️",
		StatusAdded:     "🎶",
		StatusStopped:   "⏹",
		StatusSkipped:   "⏩",
		StatusRecording: "⏺",
		StatusError:     "❌",
	}
	return m[status]
}

// Event is a status change of one guild's player.
type Event struct {
	GuildID string
	Status  PlayerStatus
	Title   string
}

// emitStatus delivers ev without blocking; events are dropped when nobody
// keeps up with the channel.
func emitStatus(ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
		log.Debug().Str("guild", ev.GuildID).Str("status", string(ev.Status)).Msg("player status dropped (channel full)")
	}
}
