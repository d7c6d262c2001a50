package rtc

import (
	"context"
	"sync"
)

// FakeMediaDevices scripts media acquisition for tests
type FakeMediaDevices struct {
	mu       sync.Mutex
	Err      error
	acquired []*FakeMedia
}

func (d *FakeMediaDevices) Acquire(ctx context.Context, audio, video bool) (MediaHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	m := &FakeMedia{audioEnabled: audio, videoEnabled: video}
	d.acquired = append(d.acquired, m)
	return m, nil
}

// Acquired returns every handle handed out so far
func (d *FakeMediaDevices) Acquired() []*FakeMedia {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeMedia(nil), d.acquired...)
}

type FakeMedia struct {
	mu           sync.Mutex
	audioEnabled bool
	videoEnabled bool
	Closed       bool
}

func (m *FakeMedia) SetAudioEnabled(enabled bool) {
	m.mu.Lock()
	m.audioEnabled = enabled
	m.mu.Unlock()
}

func (m *FakeMedia) SetVideoEnabled(enabled bool) {
	m.mu.Lock()
	m.videoEnabled = enabled
	m.mu.Unlock()
}

func (m *FakeMedia) AudioEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audioEnabled
}

func (m *FakeMedia) VideoEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.videoEnabled
}

func (m *FakeMedia) Close() error {
	m.mu.Lock()
	m.Closed = true
	m.mu.Unlock()
	return nil
}

// FakeTransportFactory hands out scripted transports
type FakeTransportFactory struct {
	mu      sync.Mutex
	Err     error
	created []*FakeTransport
}

func (f *FakeTransportFactory) NewTransport(media MediaHandle) (PeerTransport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	t := &FakeTransport{}
	f.created = append(f.created, t)
	return t, nil
}

// Last returns the most recently created transport
func (f *FakeTransportFactory) Last() *FakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

// FakeTransport is a deterministic PeerTransport: every operation
// succeeds unless scripted otherwise, and callbacks can be fired
// manually.
type FakeTransport struct {
	mu sync.Mutex

	OfferErr  error
	AnswerErr error
	AcceptErr error

	Offers          int
	Answers         int
	AcceptedAnswers []SessionDescription
	RemoteOffers    []SessionDescription
	Candidates      []ICECandidate
	Closed          bool

	onCandidate func(ICECandidate)
	onState     func(TransportState)
	onTrack     func(kind string)
}

func (t *FakeTransport) CreateOffer(ctx context.Context) (SessionDescription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.OfferErr != nil {
		return SessionDescription{}, t.OfferErr
	}
	t.Offers++
	return SessionDescription{Type: "offer", SDP: "v=0 fake-offer"}, nil
}

func (t *FakeTransport) CreateAnswer(ctx context.Context, offer SessionDescription) (SessionDescription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.AnswerErr != nil {
		return SessionDescription{}, t.AnswerErr
	}
	t.RemoteOffers = append(t.RemoteOffers, offer)
	t.Answers++
	return SessionDescription{Type: "answer", SDP: "v=0 fake-answer"}, nil
}

func (t *FakeTransport) AcceptAnswer(ctx context.Context, answer SessionDescription) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.AcceptErr != nil {
		return t.AcceptErr
	}
	t.AcceptedAnswers = append(t.AcceptedAnswers, answer)
	return nil
}

func (t *FakeTransport) AddICECandidate(candidate ICECandidate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Candidates = append(t.Candidates, candidate)
	return nil
}

func (t *FakeTransport) OnICECandidate(fn func(ICECandidate)) {
	t.mu.Lock()
	t.onCandidate = fn
	t.mu.Unlock()
}

func (t *FakeTransport) OnStateChange(fn func(TransportState)) {
	t.mu.Lock()
	t.onState = fn
	t.mu.Unlock()
}

func (t *FakeTransport) OnRemoteTrack(fn func(kind string)) {
	t.mu.Lock()
	t.onTrack = fn
	t.mu.Unlock()
}

func (t *FakeTransport) Close() error {
	t.mu.Lock()
	t.Closed = true
	t.mu.Unlock()
	return nil
}

// EmitCandidate fires the local candidate callback
func (t *FakeTransport) EmitCandidate(candidate ICECandidate) {
	t.mu.Lock()
	fn := t.onCandidate
	t.mu.Unlock()
	if fn != nil {
		fn(candidate)
	}
}

// EmitState fires the state change callback
func (t *FakeTransport) EmitState(state TransportState) {
	t.mu.Lock()
	fn := t.onState
	t.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

// EmitRemoteTrack fires the remote track callback
func (t *FakeTransport) EmitRemoteTrack(kind string) {
	t.mu.Lock()
	fn := t.onTrack
	t.mu.Unlock()
	if fn != nil {
		fn(kind)
	}
}
