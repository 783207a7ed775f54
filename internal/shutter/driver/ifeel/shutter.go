package ifeel

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/ranmee/ifeel2mqtt/internal/shutter"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPollInterval = 2500 * time.Millisecond
	DefaultPollTimeout  = time.Minute
)

// PositionClient is the subset of the hub client a shutter needs.
type PositionClient interface {
	Position(ctx context.Context, id int) (int, error)
	SetPosition(ctx context.Context, id int, value int) error
}

// HubShutter reconciles one physical shutter on the hub. It tracks the
// last commanded target position against the hub-reported actual
// position and runs a bounded polling session after every command to
// observe the move converging.
type HubShutter struct {
	hub PositionClient

	id   int
	name string

	pollInterval time.Duration
	pollTimeout  time.Duration

	updateHandler shutter.UpdateHandler

	mu              sync.Mutex
	currentPosition int
	targetPosition  int
	liveSessions    int

	cancelCurrentSession context.CancelFunc
}

// NewHubShutter builds a shutter and seeds its position asynchronously
// from a hub read. Until the seed read lands both positions are zero.
func NewHubShutter(ctx context.Context, hub PositionClient, id int, name string, pollInterval, pollTimeout time.Duration) *HubShutter {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}

	s := &HubShutter{
		hub:          hub,
		id:           id,
		name:         name,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
	}

	go s.seed(ctx)

	return s
}

func (s *HubShutter) seed(ctx context.Context) {
	pos, err := s.hub.Position(ctx, s.id)
	if err != nil {
		logrus.Errorf("%s: initial position read failed: %s", s.name, err)
		return
	}

	s.mu.Lock()
	s.currentPosition = pos
	s.targetPosition = pos
	s.mu.Unlock()

	logrus.Debugf("%s: position seeded to %d", s.name, pos)
	s.publish(shutter.MotionStopped, pos)
}

func (s *HubShutter) Name() string {
	return s.name
}

func (s *HubShutter) ID() int {
	return s.id
}

func (s *HubShutter) OnUpdate(h shutter.UpdateHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updateHandler = h
}

// CurrentPosition reads the actual position from the hub. When no
// polling session is live and the reading disagrees with the stored
// target, the shutter was moved out of band (wall switch) and the
// target resyncs to the reading.
func (s *HubShutter) CurrentPosition(ctx context.Context) (int, error) {
	pos, err := s.hub.Position(ctx, s.id)
	if err != nil {
		return 0, errors.Wrapf(err, "%s: position read failed", s.name)
	}

	s.mu.Lock()
	s.currentPosition = pos
	if s.liveSessions == 0 && pos != s.targetPosition {
		logrus.Debugf("%s: out-of-band move detected, target resynced to %d", s.name, pos)
		s.targetPosition = pos
	}
	state := shutter.DeriveMotionState(pos, s.targetPosition)
	s.mu.Unlock()

	s.publish(state, pos)

	return pos, nil
}

// TargetPosition returns the last commanded target without a hub round
// trip.
func (s *HubShutter) TargetPosition(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.targetPosition, nil
}

// MotionState reads the actual position and derives the motion state
// against the stored target.
func (s *HubShutter) MotionState(ctx context.Context) (shutter.MotionState, error) {
	pos, err := s.hub.Position(ctx, s.id)
	if err != nil {
		return shutter.MotionStopped, errors.Wrapf(err, "%s: position read failed", s.name)
	}

	s.mu.Lock()
	s.currentPosition = pos
	state := shutter.DeriveMotionState(pos, s.targetPosition)
	s.mu.Unlock()

	return state, nil
}

// SetTargetPosition records the new target, dispatches the hub command
// fire-and-forget and starts a fresh polling session. Any session
// already running is cancelled first. Returns immediately; a failed
// command is only logged and shows up as a session that never
// converges.
func (s *HubShutter) SetTargetPosition(ctx context.Context, position int) error {
	if position < shutter.FullClosePosition || position > shutter.FullOpenPosition {
		return errors.Errorf(
			"%s: %d is out of position range (%d/%d)",
			s.name,
			position,
			shutter.FullClosePosition,
			shutter.FullOpenPosition,
		)
	}

	logrus.Infof("%s: set target position to %d", s.name, position)

	s.mu.Lock()
	s.targetPosition = position
	state := shutter.DeriveMotionState(s.currentPosition, position)
	current := s.currentPosition
	s.mu.Unlock()

	ctx = s.retainSession(ctx)

	go s.command(ctx, position)
	go s.poll(ctx)

	s.publish(state, current)

	return nil
}

// retainSession cancels the previous polling session, if any, before
// handing out the context for the next one. Cancellation happens
// before the new session starts so at most one is ever live. The new
// session counts as live from here, not from the first poll tick, so
// a position read arriving between the command and the first tick
// cannot resync the target away.
func (s *HubShutter) retainSession(parent context.Context) (ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelCurrentSession != nil {
		logrus.Debugf("%s: found previous polling session, cancel", s.name)
		s.cancelCurrentSession()
	}

	s.liveSessions++

	ctx, s.cancelCurrentSession = context.WithCancel(parent)
	return ctx
}

func (s *HubShutter) command(ctx context.Context, position int) {
	if err := s.hub.SetPosition(ctx, s.id, position); err != nil {
		logrus.Errorf("%s: position command failed: %s", s.name, err)
	}
}

// poll runs the session retainSession already counted live; the
// counter drops when the session ends, whatever ends it.
func (s *HubShutter) poll(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.liveSessions--
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	deadline := time.After(s.pollTimeout)

	for {
		select {
		case <-ctx.Done():
			logrus.Debugf("%s: polling session superseded", s.name)
			return
		case <-deadline:
			logrus.Infof("%s: gave up polling for target position after %s", s.name, s.pollTimeout)
			return
		case <-ticker.C:
			pos, err := s.hub.Position(ctx, s.id)
			if err != nil {
				logrus.Debugf("%s: poll position read failed: %s", s.name, err)
				continue
			}
			if ctx.Err() != nil {
				// read from a just-cancelled session, discard
				return
			}

			s.mu.Lock()
			s.currentPosition = pos
			target := s.targetPosition
			state := shutter.DeriveMotionState(pos, target)
			s.mu.Unlock()

			s.publish(state, pos)

			if pos == target {
				logrus.Debugf("%s: target position %d reached", s.name, target)
				return
			}
		}
	}
}

func (s *HubShutter) activePollSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.liveSessions
}

func (s *HubShutter) publish(state shutter.MotionState, position int) {
	s.mu.Lock()
	h := s.updateHandler
	s.mu.Unlock()

	if h == nil {
		return
	}

	h(state, position)
}
