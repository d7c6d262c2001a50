package rtc

import (
	"context"
	"fmt"
)

// SessionDescription is a transport-agnostic SDP body
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate is a transport-agnostic connectivity candidate
type ICECandidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// TransportState reflects the peer connection lifecycle
type TransportState int

const (
	TransportStateNew TransportState = iota
	TransportStateConnecting
	TransportStateConnected
	TransportStateDisconnected
	TransportStateFailed
	TransportStateClosed
)

func (s TransportState) String() string {
	switch s {
	case TransportStateNew:
		return "new"
	case TransportStateConnecting:
		return "connecting"
	case TransportStateConnected:
		return "connected"
	case TransportStateDisconnected:
		return "disconnected"
	case TransportStateFailed:
		return "failed"
	case TransportStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PeerTransport is the capability a controller needs from the
// underlying peer connection. Exactly one offer/answer exchange happens
// per transport; there is no renegotiation.
type PeerTransport interface {
	CreateOffer(ctx context.Context) (SessionDescription, error)
	CreateAnswer(ctx context.Context, offer SessionDescription) (SessionDescription, error)
	AcceptAnswer(ctx context.Context, answer SessionDescription) error
	AddICECandidate(candidate ICECandidate) error

	OnICECandidate(fn func(ICECandidate))
	OnStateChange(fn func(TransportState))
	OnRemoteTrack(fn func(kind string))

	Close() error
}

// TransportFactory builds one transport per call
type TransportFactory interface {
	NewTransport(media MediaHandle) (PeerTransport, error)
}

// MediaHandle owns acquired capture devices for one call
type MediaHandle interface {
	SetAudioEnabled(enabled bool)
	SetVideoEnabled(enabled bool)
	AudioEnabled() bool
	VideoEnabled() bool
	Close() error
}

// MediaDevices acquires local capture devices
type MediaDevices interface {
	Acquire(ctx context.Context, audio, video bool) (MediaHandle, error)
}

// MediaErrorKind classifies device acquisition failures
type MediaErrorKind string

const (
	MediaPermissionDenied MediaErrorKind = "permission_denied"
	MediaDeviceNotFound   MediaErrorKind = "device_not_found"
	MediaDeviceBusy       MediaErrorKind = "device_busy"
	MediaUnsupported      MediaErrorKind = "unsupported"
)

// MediaError is a classified device acquisition failure with a
// user-presentable message
type MediaError struct {
	Kind MediaErrorKind
	Err  error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("media error (%s): %v", e.Kind, e.Err)
}

func (e *MediaError) Unwrap() error {
	return e.Err
}

// UserMessage phrases the failure for display
func (e *MediaError) UserMessage() string {
	switch e.Kind {
	case MediaPermissionDenied:
		return "Please allow camera and microphone access and try again."
	case MediaDeviceNotFound:
		return "No camera or microphone found. Please check your device connections."
	case MediaDeviceBusy:
		return "Camera or microphone is already in use by another application."
	case MediaUnsupported:
		return "This device does not support the required media features."
	default:
		return "Failed to access camera or microphone."
	}
}
