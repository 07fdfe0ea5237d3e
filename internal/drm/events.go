package drm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

// Event types written by the kernel to the device file.
const (
	EventVBlank       = 0x01
	EventFlipComplete = 0x02
	EventCrtcSequence = 0x03
)

const (
	eventHeaderLen = 8
	// struct drm_event_vblank
	vblankEventLen = eventHeaderLen + 24
)

var ErrShortEvent = errors.New("truncated drm event")

// FlipEvent reports that a queued page flip reached the screen.
type FlipEvent struct {
	Crtc      uint32
	Sequence  uint32
	UserData  uint64
	Timestamp time.Duration // CLOCK_MONOTONIC time of the vblank
}

// ParseEvents decodes a buffer read from the device file. Events other than
// flip completion are skipped.
func ParseEvents(buf []byte) ([]FlipEvent, error) {
	var flips []FlipEvent
	for len(buf) > 0 {
		if len(buf) < eventHeaderLen {
			return flips, ErrShortEvent
		}
		typ := binary.NativeEndian.Uint32(buf[0:4])
		length := int(binary.NativeEndian.Uint32(buf[4:8]))
		if length < eventHeaderLen || length > len(buf) {
			return flips, fmt.Errorf("%w: type %d length %d", ErrShortEvent, typ, length)
		}

		if typ == EventFlipComplete {
			if length < vblankEventLen {
				return flips, fmt.Errorf("%w: flip event length %d", ErrShortEvent, length)
			}
			body := buf[eventHeaderLen:length]
			sec := binary.NativeEndian.Uint32(body[8:12])
			usec := binary.NativeEndian.Uint32(body[12:16])
			flips = append(flips, FlipEvent{
				UserData:  binary.NativeEndian.Uint64(body[0:8]),
				Timestamp: time.Duration(sec)*time.Second + time.Duration(usec)*time.Microsecond,
				Sequence:  binary.NativeEndian.Uint32(body[16:20]),
				Crtc:      binary.NativeEndian.Uint32(body[20:24]),
			})
		}
		buf = buf[length:]
	}
	return flips, nil
}

// Handler receives what the device reports.
type Handler interface {
	// Flip is called for every completed page flip. sinceLast is the time
	// between this vblank and the previous one, zero for the first.
	Flip(crtc, sequence uint32, sinceLast time.Duration)
	// Error is called when the device can no longer be read.
	Error(err error)
}

// EventSource turns device readiness into handler calls. It is driven by an
// event loop through Ready.
type EventSource struct {
	fd      int
	handler Handler
	last    time.Duration
	buf     [1024]byte
}

func NewEventSource(card *Card, handler Handler) *EventSource {
	return &EventSource{fd: int(card.Fd()), handler: handler}
}

func (s *EventSource) Fd() int {
	return s.fd
}

// Ready reads and dispatches the pending events. revents is the poll result
// for the device descriptor.
func (s *EventSource) Ready(revents int16) {
	if revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		s.handler.Error(fmt.Errorf("drm device poll error (revents %#x)", revents))
		return
	}
	if revents&unix.POLLIN == 0 {
		return
	}

	n, err := unix.Read(s.fd, s.buf[:])
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return
		}
		s.handler.Error(fmt.Errorf("read drm events: %w", err))
		return
	}

	flips, err := ParseEvents(s.buf[:n])
	for _, f := range flips {
		s.dispatch(f)
	}
	if err != nil {
		s.handler.Error(err)
	}
}

func (s *EventSource) dispatch(f FlipEvent) {
	var since time.Duration
	if s.last != 0 && f.Timestamp > s.last {
		since = f.Timestamp - s.last
	}
	s.last = f.Timestamp
	log.Debugf("flip complete on crtc %d seq %d (+%v)", f.Crtc, f.Sequence, since)
	s.handler.Flip(f.Crtc, f.Sequence, since)
}
