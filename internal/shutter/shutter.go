package shutter

import (
	"context"
)

const (
	FullOpenPosition  = 100
	FullClosePosition = 0
)

// MotionState describes whether a shutter position is moving towards
// open, towards closed, or not moving at all.
type MotionState int

const (
	MotionStopped MotionState = iota
	MotionIncreasing
	MotionDecreasing
)

func (m MotionState) String() string {
	switch m {
	case MotionIncreasing:
		return "increasing"
	case MotionDecreasing:
		return "decreasing"
	default:
		return "stopped"
	}
}

// DeriveMotionState compares the last known actual position with the
// last commanded target position.
func DeriveMotionState(current, target int) MotionState {
	switch {
	case current < target:
		return MotionIncreasing
	case current > target:
		return MotionDecreasing
	default:
		return MotionStopped
	}
}

type UpdateHandler func(state MotionState, position int)

type Shutter interface {
	Name() string
	ID() int

	CurrentPosition(ctx context.Context) (int, error)
	TargetPosition(ctx context.Context) (int, error)
	MotionState(ctx context.Context) (MotionState, error)

	OnUpdate(h UpdateHandler)

	SetTargetPosition(ctx context.Context, position int) error
}
