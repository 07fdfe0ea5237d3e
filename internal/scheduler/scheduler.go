// Package scheduler paces rendering on page-flip completion.
//
// The scheduler is a three state machine. A completed flip moves it from Idle
// to FrameInFlight, runs the render pass, and moves it back to Idle once the
// frame has been submitted. A device error moves it to Faulted, which it never
// leaves.
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

type State int

const (
	Idle State = iota
	FrameInFlight
	Faulted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case FrameInFlight:
		return "frame-in-flight"
	case Faulted:
		return "faulted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	ErrReentrantFlip = errors.New("flip signalled while a frame is in flight")
	ErrFaulted       = errors.New("scheduler is faulted")
)

// DeviceFaultError is the terminal error of a faulted scheduler.
type DeviceFaultError struct {
	Err error
}

func (e *DeviceFaultError) Error() string {
	return "display device fault: " + e.Err.Error()
}

func (e *DeviceFaultError) Unwrap() error {
	return e.Err
}

// RenderFunc runs one render pass and returns once the frame is submitted.
type RenderFunc func() error

type Scheduler struct {
	state   State
	render  RenderFunc
	fault   *DeviceFaultError
	frames  uint64
	lastSeq uint32
	last    time.Duration
}

func New(render RenderFunc) *Scheduler {
	return &Scheduler{render: render}
}

func (s *Scheduler) State() State {
	return s.state
}

// Fault returns the error that faulted the scheduler, or nil.
func (s *Scheduler) Fault() error {
	if s.fault == nil {
		return nil
	}
	return s.fault
}

// Frames is the number of render passes completed.
func (s *Scheduler) Frames() uint64 {
	return s.frames
}

func (s *Scheduler) LastSequence() uint32 {
	return s.lastSeq
}

// FrameInterval is the time between the last two flips the device reported.
func (s *Scheduler) FrameInterval() time.Duration {
	return s.last
}

// Flip handles a flip completion by running one render pass. A render pass
// that fails to submit its frame faults the scheduler.
func (s *Scheduler) Flip(crtc, sequence uint32, sinceLast time.Duration) error {
	switch s.state {
	case Faulted:
		return ErrFaulted
	case FrameInFlight:
		return ErrReentrantFlip
	}

	s.state = FrameInFlight
	s.lastSeq = sequence
	s.last = sinceLast

	if err := s.render(); err != nil {
		return s.Error(fmt.Errorf("render on crtc %d: %w", crtc, err))
	}

	s.frames++
	s.state = Idle
	return nil
}

// Error faults the scheduler. The first error is kept; later ones are logged.
func (s *Scheduler) Error(err error) error {
	if s.fault != nil {
		log.Debugf("further device error after fault: %v", err)
		return s.fault
	}
	s.state = Faulted
	s.fault = &DeviceFaultError{Err: err}
	log.Errorf("%v", s.fault)
	return s.fault
}
