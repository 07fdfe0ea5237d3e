package scheduler

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// FlipHandler receives flip completions, the same shape a DRM event source
// delivers.
type FlipHandler interface {
	Flip(crtc, sequence uint32, sinceLast time.Duration)
	Error(err error)
}

// Ticker is a timerfd standing in for vblank when there is no display
// hardware. Every expiry is reported as one completed flip.
type Ticker struct {
	fd       int
	interval time.Duration
	handler  FlipHandler
	seq      uint32
}

func NewTicker(interval time.Duration, handler FlipHandler) (*Ticker, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("invalid tick interval %v", interval)
	}
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("timerfd_create: %w", err)
	}

	spec := unix.NsecToTimespec(interval.Nanoseconds())
	its := &unix.ItimerSpec{Interval: spec, Value: spec}
	if err := unix.TimerfdSettime(fd, 0, its, nil); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("timerfd_settime: %w", err)
	}
	return &Ticker{fd: fd, interval: interval, handler: handler}, nil
}

func (t *Ticker) Fd() int {
	return t.fd
}

// Ready consumes the expirations and reports a single flip for them.
func (t *Ticker) Ready(revents int16) {
	if revents&unix.POLLIN == 0 {
		return
	}

	var buf [8]byte
	if _, err := unix.Read(t.fd, buf[:]); err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return
		}
		t.handler.Error(fmt.Errorf("read timerfd: %w", err))
		return
	}

	expirations := binary.NativeEndian.Uint64(buf[:])
	t.seq += uint32(expirations)
	t.handler.Flip(0, t.seq, time.Duration(expirations)*t.interval)
}

func (t *Ticker) Close() error {
	return unix.Close(t.fd)
}
