package mqtt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ranmee/ifeel2mqtt/internal/shutter"
)

type staticShutter struct {
	id   int
	name string
}

func (s *staticShutter) Name() string { return s.name }
func (s *staticShutter) ID() int      { return s.id }

func (s *staticShutter) CurrentPosition(context.Context) (int, error) { return 0, nil }
func (s *staticShutter) TargetPosition(context.Context) (int, error)  { return 0, nil }

func (s *staticShutter) MotionState(context.Context) (shutter.MotionState, error) {
	return shutter.MotionStopped, nil
}
func (s *staticShutter) OnUpdate(shutter.UpdateHandler)               {}
func (s *staticShutter) SetTargetPosition(context.Context, int) error { return nil }

func TestCoverState(t *testing.T) {
	cases := []struct {
		name     string
		state    shutter.MotionState
		position int
		expected string
	}{
		{"opening while increasing", shutter.MotionIncreasing, 30, coverOpeningState},
		{"closing while decreasing", shutter.MotionDecreasing, 30, coverClosingState},
		{"closed when stopped at the bottom", shutter.MotionStopped, 0, coverClosedState},
		{"open when stopped anywhere else", shutter.MotionStopped, 40, coverOpenState},
		{"open when stopped at the top", shutter.MotionStopped, 100, coverOpenState},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expected, coverState(c.state, c.position))
		})
	}
}

func TestBridgeTopics(t *testing.T) {
	b := NewBridge(nil, &staticShutter{id: 7, name: "bedroom"})

	assert.Equal(t, "ifeel2mqtt/bedroom/state", b.StateTopic)
	assert.Equal(t, "ifeel2mqtt/bedroom/position", b.PositionTopic)
	assert.Equal(t, "ifeel2mqtt/bedroom/metadata", b.MetadataTopic)
	assert.Equal(t, "ifeel2mqtt/bedroom/set", b.CommandTopic)
	assert.Equal(t, "ifeel2mqtt/bedroom/position/set", b.PositionChangeTopic)
}

func TestHACoverFromBridge(t *testing.T) {
	b := NewBridge(nil, &staticShutter{id: 7, name: "bedroom"})
	cover := NewHACoverFromMQTTBridge(b)

	assert.Equal(t, "ifeel-7", cover.UniqueID)
	assert.Equal(t, "bedroom", cover.Name)
	assert.Equal(t, b.StateTopic, cover.StateTopic)
	assert.Equal(t, b.PositionChangeTopic, cover.SetPositionTopic)
	assert.Equal(t, 100, cover.PositionOpen)
	assert.Equal(t, 0, cover.PositionClosed)
}
