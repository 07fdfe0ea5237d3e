// Package eventloop is the single-threaded reactor the compositor blocks in.
// Sources are file descriptors polled for input; their callbacks run on the
// goroutine calling Dispatch.
package eventloop

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Callback is invoked with the poll revents of a ready descriptor.
type Callback func(revents int16)

type Token int

type source struct {
	token Token
	fd    int
	cb    Callback
}

type Loop struct {
	sources []source
	next    Token
	fds     []unix.PollFd
}

func New() *Loop {
	return &Loop{}
}

// Add registers fd for readability. The returned token removes it again.
func (l *Loop) Add(fd int, cb Callback) Token {
	l.next++
	l.sources = append(l.sources, source{token: l.next, fd: fd, cb: cb})
	return l.next
}

func (l *Loop) Remove(t Token) {
	for i, s := range l.sources {
		if s.token == t {
			l.sources = append(l.sources[:i], l.sources[i+1:]...)
			return
		}
	}
}

func (l *Loop) Len() int {
	return len(l.sources)
}

// Dispatch waits up to timeout for any source to become ready and runs the
// callbacks of the ready ones in registration order. A negative timeout
// blocks until something is ready.
func (l *Loop) Dispatch(timeout time.Duration) error {
	if len(l.sources) == 0 {
		if timeout > 0 {
			time.Sleep(timeout)
		}
		return nil
	}

	l.fds = l.fds[:0]
	for _, s := range l.sources {
		l.fds = append(l.fds, unix.PollFd{Fd: int32(s.fd), Events: unix.POLLIN})
	}

	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}

	n, err := unix.Poll(l.fds, ms)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return fmt.Errorf("poll: %w", err)
	}
	if n == 0 {
		return nil
	}

	// callbacks may add or remove sources; work on a copy
	ready := make([]source, 0, n)
	revents := make([]int16, 0, n)
	for i, pfd := range l.fds {
		if pfd.Revents != 0 {
			ready = append(ready, l.sources[i])
			revents = append(revents, pfd.Revents)
		}
	}
	for i, s := range ready {
		s.cb(revents[i])
	}
	return nil
}
