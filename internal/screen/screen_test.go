package screen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachineHappyPath(t *testing.T) {
	m := New()
	assert.Equal(t, Home, m.State())

	for _, step := range []struct {
		event Event
		want  State
	}{
		{EventStart, Camera},
		{EventCapture, Form},
		{EventRetake, Camera},
		{EventCancel, Home},
	} {
		got, err := m.Fire(step.event)
		require.NoError(t, err, step.event)
		assert.Equal(t, step.want, got)
	}
}

func TestMachineRejectsInvalidTransitions(t *testing.T) {
	cases := map[State][]Event{
		Home:   {EventCapture, EventCancel, EventRetake},
		Camera: {EventStart, EventRetake},
		Form:   {EventStart, EventCapture, EventCancel},
	}
	for from, events := range cases {
		for _, e := range events {
			m := &Machine{state: from}
			assert.False(t, m.Can(e))
			got, err := m.Fire(e)
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s from %s", e, from)
			assert.Equal(t, from, got)
			assert.Equal(t, from, m.State(), "state unchanged")
		}
	}
}

func TestFormHasNoDirectWayHome(t *testing.T) {
	m := &Machine{state: Form}
	for _, e := range []Event{EventStart, EventCapture, EventCancel, EventRetake} {
		if next, ok := transitions[Form][e]; ok {
			assert.NotEqual(t, Home, next)
		}
	}
	assert.True(t, m.Can(EventRetake))
}

func TestRequire(t *testing.T) {
	m := New()
	require.NoError(t, m.Require(Home))
	assert.ErrorIs(t, m.Require(Form), ErrUnreachable)
	assert.ErrorIs(t, m.Require(Camera), ErrUnreachable)
}
