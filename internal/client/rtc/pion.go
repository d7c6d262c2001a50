package rtc

import (
	"context"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"peercall-backend/pkg/logger"
)

// DefaultICEServers are the public STUN servers used for candidate
// discovery when no TURN infrastructure is configured
var DefaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
	"stun:stun3.l.google.com:19302",
	"stun:stun4.l.google.com:19302",
}

// PionFactory builds pion-backed peer transports
type PionFactory struct {
	iceServers []string
}

// NewPionFactory creates a transport factory. Empty iceServers falls
// back to the default STUN list.
func NewPionFactory(iceServers []string) *PionFactory {
	if len(iceServers) == 0 {
		iceServers = DefaultICEServers
	}
	return &PionFactory{iceServers: iceServers}
}

// NewTransport creates a peer connection with local tracks from media
// attached
func (f *PionFactory) NewTransport(media MediaHandle) (PeerTransport, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, err
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: f.iceServers}},
	})
	if err != nil {
		return nil, err
	}

	t := &pionTransport{pc: pc}

	if pm, ok := media.(*PionMedia); ok {
		for _, track := range pm.tracks() {
			if _, err := pc.AddTrack(track); err != nil {
				pc.Close()
				return nil, err
			}
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		t.mu.Lock()
		fn := t.onCandidate
		t.mu.Unlock()
		if fn != nil {
			fn(ICECandidate{
				Candidate:     init.Candidate,
				SDPMid:        init.SDPMid,
				SDPMLineIndex: init.SDPMLineIndex,
			})
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		t.mu.Lock()
		fn := t.onState
		t.mu.Unlock()
		if fn != nil {
			fn(mapPeerConnectionState(state))
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		logger.Debug("Remote track received", zap.String("kind", track.Kind().String()))
		t.mu.Lock()
		fn := t.onTrack
		t.mu.Unlock()
		if fn != nil {
			fn(track.Kind().String())
		}
	})

	return t, nil
}

type pionTransport struct {
	pc *webrtc.PeerConnection

	mu          sync.Mutex
	onCandidate func(ICECandidate)
	onState     func(TransportState)
	onTrack     func(kind string)
}

func (t *pionTransport) CreateOffer(ctx context.Context) (SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return SessionDescription{}, err
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return SessionDescription{}, err
	}
	return SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (t *pionTransport) CreateAnswer(ctx context.Context, offer SessionDescription) (SessionDescription, error) {
	if err := t.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(offer.Type),
		SDP:  offer.SDP,
	}); err != nil {
		return SessionDescription{}, err
	}

	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return SessionDescription{}, err
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return SessionDescription{}, err
	}
	return SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (t *pionTransport) AcceptAnswer(ctx context.Context, answer SessionDescription) error {
	return t.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(answer.Type),
		SDP:  answer.SDP,
	})
}

func (t *pionTransport) AddICECandidate(candidate ICECandidate) error {
	return t.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMid:        candidate.SDPMid,
		SDPMLineIndex: candidate.SDPMLineIndex,
	})
}

func (t *pionTransport) OnICECandidate(fn func(ICECandidate)) {
	t.mu.Lock()
	t.onCandidate = fn
	t.mu.Unlock()
}

func (t *pionTransport) OnStateChange(fn func(TransportState)) {
	t.mu.Lock()
	t.onState = fn
	t.mu.Unlock()
}

func (t *pionTransport) OnRemoteTrack(fn func(kind string)) {
	t.mu.Lock()
	t.onTrack = fn
	t.mu.Unlock()
}

func (t *pionTransport) Close() error {
	return t.pc.Close()
}

func mapPeerConnectionState(state webrtc.PeerConnectionState) TransportState {
	switch state {
	case webrtc.PeerConnectionStateNew:
		return TransportStateNew
	case webrtc.PeerConnectionStateConnecting:
		return TransportStateConnecting
	case webrtc.PeerConnectionStateConnected:
		return TransportStateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return TransportStateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return TransportStateFailed
	default:
		return TransportStateClosed
	}
}
