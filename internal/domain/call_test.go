package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCallTypeIsValid(t *testing.T) {
	assert.True(t, CallTypeAudio.IsValid())
	assert.True(t, CallTypeVideo.IsValid())
	assert.False(t, CallType("screen").IsValid())
	assert.False(t, CallType("").IsValid())
}

func TestCallStatusTransitions(t *testing.T) {
	tests := []struct {
		from    CallStatus
		to      CallStatus
		allowed bool
	}{
		{CallStatusInitiated, CallStatusAnswered, true},
		{CallStatusInitiated, CallStatusDeclined, true},
		{CallStatusInitiated, CallStatusMissed, true},
		{CallStatusInitiated, CallStatusEnded, true},
		{CallStatusInitiated, CallStatusFailed, true},
		{CallStatusAnswered, CallStatusEnded, true},
		{CallStatusAnswered, CallStatusFailed, true},
		{CallStatusAnswered, CallStatusDeclined, false},
		{CallStatusAnswered, CallStatusMissed, false},
		{CallStatusAnswered, CallStatusInitiated, false},
		{CallStatusDeclined, CallStatusAnswered, false},
		{CallStatusMissed, CallStatusEnded, false},
		{CallStatusEnded, CallStatusAnswered, false},
		{CallStatusFailed, CallStatusEnded, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestCallStatusIsTerminal(t *testing.T) {
	assert.False(t, CallStatusInitiated.IsTerminal())
	assert.False(t, CallStatusAnswered.IsTerminal())
	assert.True(t, CallStatusDeclined.IsTerminal())
	assert.True(t, CallStatusMissed.IsTerminal())
	assert.True(t, CallStatusEnded.IsTerminal())
	assert.True(t, CallStatusFailed.IsTerminal())
}

func TestCallParticipants(t *testing.T) {
	caller := uuid.New()
	receiver := uuid.New()
	outsider := uuid.New()
	call := &Call{CallerID: caller, ReceiverID: receiver}

	assert.True(t, call.IsParticipant(caller))
	assert.True(t, call.IsParticipant(receiver))
	assert.False(t, call.IsParticipant(outsider))

	other, ok := call.OtherParty(caller)
	assert.True(t, ok)
	assert.Equal(t, receiver, other)

	other, ok = call.OtherParty(receiver)
	assert.True(t, ok)
	assert.Equal(t, caller, other)

	_, ok = call.OtherParty(outsider)
	assert.False(t, ok)
}

func TestComputeDuration(t *testing.T) {
	answered := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ended := answered.Add(95 * time.Second)

	assert.Equal(t, 95, ComputeDuration(&answered, &ended))
	assert.Equal(t, 0, ComputeDuration(nil, &ended), "unanswered call has zero duration")
	assert.Equal(t, 0, ComputeDuration(&answered, nil))

	// Clock skew must not produce negative durations
	before := answered.Add(-10 * time.Second)
	assert.Equal(t, 0, ComputeDuration(&answered, &before))
}
