package shell

import (
	"github.com/matjam/drmcomp/internal/types"
)

const (
	cascadeStep  = 32
	cascadeSteps = 8
)

// Shell applies client surface requests: attached buffers and frame callbacks
// are held pending until commit, subsurface positions until the parent
// commits, and toplevels are mapped into the window map once they have
// contents.
//
// Like surfaces, a Shell is only used from the compositor thread.
type Shell struct {
	windows   *WindowMap
	pending   map[*Surface]*pendingState
	toplevels map[*Surface]bool
	callbacks []frameCallback
	placed    int
}

type pendingState struct {
	buffer    Buffer
	attached  bool
	callbacks []func(uint32)
	position  *types.Point
}

type frameCallback struct {
	surface *Surface
	done    func(uint32)
}

func New(windows *WindowMap) *Shell {
	return &Shell{
		windows:  windows,
		pending:   make(map[*Surface]*pendingState),
		toplevels: make(map[*Surface]bool),
	}
}

func (sh *Shell) Windows() *WindowMap {
	return sh.windows
}

func (sh *Shell) CreateSurface() *Surface {
	return NewSurface()
}

func (sh *Shell) state(s *Surface) *pendingState {
	st, ok := sh.pending[s]
	if !ok {
		st = &pendingState{}
		sh.pending[s] = st
	}
	return st
}

// Attach sets the pending buffer; nil removes the contents on the next commit.
func (sh *Shell) Attach(s *Surface, b Buffer) {
	st := sh.state(s)
	if st.attached && st.buffer != nil && st.buffer != b && st.buffer != s.Buffer() {
		releaseBuffer(st.buffer)
	}
	st.buffer = b
	st.attached = true
}

// Frame asks for done to be called after the next frame that follows a commit.
func (sh *Shell) Frame(s *Surface, done func(ms uint32)) {
	st := sh.state(s)
	st.callbacks = append(st.callbacks, done)
}

// Commit applies the pending state of s.
func (sh *Shell) Commit(s *Surface) {
	if !s.Alive() {
		return
	}

	if st, ok := sh.pending[s]; ok {
		if st.attached {
			s.Attach(st.buffer)
			st.buffer = nil
			st.attached = false
		}
		for _, done := range st.callbacks {
			sh.callbacks = append(sh.callbacks, frameCallback{surface: s, done: done})
		}
		st.callbacks = nil
	}

	for _, child := range s.Children() {
		if st, ok := sh.pending[child]; ok && st.position != nil {
			child.SetSubsurfacePosition(*st.position)
			st.position = nil
		}
	}

	if !sh.toplevels[s] {
		return
	}
	_, mapped := sh.windows.Find(s)
	switch {
	case s.Buffer() != nil && !mapped:
		sh.windows.Insert(s, sh.nextPlacement())
	case s.Buffer() == nil && mapped:
		sh.windows.Remove(s)
	}
}

func (sh *Shell) nextPlacement() types.Point {
	off := cascadeStep * (sh.placed % cascadeSteps)
	sh.placed++
	return types.Point{X: off, Y: off}
}

// AddSubsurface makes child a subsurface of parent at the parent's origin.
func (sh *Shell) AddSubsurface(child, parent *Surface) error {
	return parent.AddSubsurface(child, types.Point{})
}

// SetSubsurfacePosition takes effect when the parent commits.
func (sh *Shell) SetSubsurfacePosition(child *Surface, p types.Point) {
	sh.state(child).position = &p
}

// RemoveSubsurface unlinks child from its parent. It keeps its role and
// loses anything pending for it.
func (sh *Shell) RemoveSubsurface(child *Surface) {
	if child.parent != nil {
		child.parent.removeChild(child)
		child.parent = nil
	}
	if st, ok := sh.pending[child]; ok {
		st.position = nil
	}
}

// SetToplevel gives s the toplevel role. It is mapped on the first commit
// with a buffer.
func (sh *Shell) SetToplevel(s *Surface, title string) error {
	if err := s.SetRole(&Toplevel{Title: title}); err != nil {
		return err
	}
	sh.toplevels[s] = true
	return nil
}

func (sh *Shell) SetTitle(s *Surface, title string) {
	if tl, ok := s.Role().(*Toplevel); ok {
		tl.Title = title
	}
}

// Unmap removes the window of s for good; the role object is gone and the
// surface can never take another role.
func (sh *Shell) Unmap(s *Surface) {
	sh.windows.Remove(s)
	delete(sh.toplevels, s)
}

// DestroySurface drops s with everything pending for it.
func (sh *Shell) DestroySurface(s *Surface) {
	if st, ok := sh.pending[s]; ok {
		if st.attached && st.buffer != nil && st.buffer != s.Buffer() {
			releaseBuffer(st.buffer)
		}
		delete(sh.pending, s)
	}
	delete(sh.toplevels, s)
	sh.windows.Remove(s)
	s.Destroy()
}

// SendFrameCallbacks fires the committed frame callbacks of live surfaces.
func (sh *Shell) SendFrameCallbacks(ms uint32) {
	cbs := sh.callbacks
	sh.callbacks = nil
	for _, cb := range cbs {
		if cb.surface.Alive() {
			cb.done(ms)
		}
	}
}
