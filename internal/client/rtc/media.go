package rtc

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// PionMediaDevices creates sendable local tracks for calls. Sample
// delivery is owned by whatever capture pipeline feeds the tracks; the
// handle only manages lifecycle and mute state.
type PionMediaDevices struct{}

func NewPionMediaDevices() *PionMediaDevices {
	return &PionMediaDevices{}
}

// Acquire creates the local tracks for a call. Audio uses Opus, video
// VP8, matching the default codec set the transport registers.
func (d *PionMediaDevices) Acquire(ctx context.Context, audio, video bool) (MediaHandle, error) {
	m := &PionMedia{
		audioEnabled: audio,
		videoEnabled: video,
	}

	streamID := uuid.New().String()

	if audio {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio", streamID)
		if err != nil {
			return nil, &MediaError{Kind: MediaUnsupported, Err: err}
		}
		m.audioTrack = track
	}

	if video {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"video", streamID)
		if err != nil {
			return nil, &MediaError{Kind: MediaUnsupported, Err: err}
		}
		m.videoTrack = track
	}

	return m, nil
}

// PionMedia holds the local tracks for one call
type PionMedia struct {
	mu           sync.Mutex
	audioTrack   *webrtc.TrackLocalStaticSample
	videoTrack   *webrtc.TrackLocalStaticSample
	audioEnabled bool
	videoEnabled bool
	closed       bool
}

func (m *PionMedia) tracks() []webrtc.TrackLocal {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []webrtc.TrackLocal
	if m.audioTrack != nil {
		out = append(out, m.audioTrack)
	}
	if m.videoTrack != nil {
		out = append(out, m.videoTrack)
	}
	return out
}

// AudioTrack exposes the audio track for the capture pipeline
func (m *PionMedia) AudioTrack() *webrtc.TrackLocalStaticSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audioTrack
}

// VideoTrack exposes the video track for the capture pipeline
func (m *PionMedia) VideoTrack() *webrtc.TrackLocalStaticSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.videoTrack
}

func (m *PionMedia) SetAudioEnabled(enabled bool) {
	m.mu.Lock()
	m.audioEnabled = enabled
	m.mu.Unlock()
}

func (m *PionMedia) SetVideoEnabled(enabled bool) {
	m.mu.Lock()
	m.videoEnabled = enabled
	m.mu.Unlock()
}

func (m *PionMedia) AudioEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audioEnabled && !m.closed
}

func (m *PionMedia) VideoEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.videoEnabled && !m.closed
}

// Close releases the tracks. Idempotent.
func (m *PionMedia) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.audioTrack = nil
	m.videoTrack = nil
	return nil
}
