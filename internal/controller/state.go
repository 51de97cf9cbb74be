package controller

import (
	"errors"
	"fmt"
)

// State is the interceptor's position in a submission cycle.
type State int32

const (
	Idle State = iota
	Captured
	Composing
	Releasing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Captured:
		return "captured"
	case Composing:
		return "composing"
	case Releasing:
		return "releasing"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

var (
	// ErrReentrant rejects a capture while another cycle is running.
	ErrReentrant = errors.New("submission already in progress")
	// ErrEmptyInput aborts a cycle when there is nothing to send.
	ErrEmptyInput = errors.New("input is empty")
)

// next lists the legal forward transitions. Every state may also fall back
// to Idle when a cycle aborts.
var next = map[State]State{
	Idle:      Captured,
	Captured:  Composing,
	Composing: Releasing,
	Releasing: Idle,
}

// transitionLocked moves c from one state to the next, refusing illegal moves.
// Callers hold c.mu.
func (c *Controller) transitionLocked(from, to State) error {
	if c.state != from {
		return fmt.Errorf("transition %s→%s: controller is %s", from, to, c.state)
	}
	if to != Idle && next[from] != to {
		return fmt.Errorf("transition %s→%s: not allowed", from, to)
	}
	c.state = to
	return nil
}

func (c *Controller) transition(from, to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionLocked(from, to)
}
