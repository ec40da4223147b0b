// Package events provides the capture event model and the durable event log
package events

// Event represents one accepted trigger occurrence and its captured artifacts.
// Fields are filled in as each capture step completes and the event is
// immutable once it enters the history ring.
type Event struct {
	ID          uint64 `json:"id"`
	TimestampMs int64  `json:"timestamp_ms"`
	ImagePath   string `json:"image_path,omitempty"`
	AudioPath   string `json:"audio_path,omitempty"`
}

// HasImage reports whether a still image was captured for this event.
func (e Event) HasImage() bool { return e.ImagePath != "" }

// HasAudio reports whether an audio clip was captured for this event.
func (e Event) HasAudio() bool { return e.AudioPath != "" }

// Summary is the compact wire shape served by the events endpoint.
type Summary struct {
	ID          uint64 `json:"id"`
	TimestampMs int64  `json:"timestamp_ms"`
	HasImage    bool   `json:"has_image"`
	HasAudio    bool   `json:"has_audio"`
}

// Summarize returns the wire summary for the event.
func (e Event) Summarize() Summary {
	return Summary{
		ID:          e.ID,
		TimestampMs: e.TimestampMs,
		HasImage:    e.HasImage(),
		HasAudio:    e.HasAudio(),
	}
}
