package shell

import (
	"github.com/charmbracelet/log"
	"github.com/matjam/drmcomp/internal/types"
)

// Window is a top-level surface placed on the output.
type Window struct {
	surface  *Surface
	location types.Point
}

// Surface returns the root surface, or nil once the client destroyed it.
func (w *Window) Surface() *Surface {
	if w.surface == nil || !w.surface.Alive() {
		return nil
	}
	return w.surface
}

func (w *Window) Location() types.Point {
	return w.location
}

func (w *Window) SetLocation(p types.Point) {
	w.location = p
}

// WindowMap keeps the top-level windows ordered bottom to top.
type WindowMap struct {
	windows []*Window
}

func NewWindowMap() *WindowMap {
	return &WindowMap{}
}

// Insert maps a surface as a new window on top of the stack.
func (m *WindowMap) Insert(s *Surface, location types.Point) *Window {
	if s.Role() == nil {
		_ = s.SetRole(&Toplevel{})
	}
	w := &Window{surface: s, location: location}
	m.windows = append(m.windows, w)
	log.Debugf("mapped window for surface %d at %v", s.ID(), location)
	return w
}

// Remove unmaps the window of s, if any.
func (m *WindowMap) Remove(s *Surface) {
	for i, w := range m.windows {
		if w.surface == s {
			copy(m.windows[i:], m.windows[i+1:])
			m.windows[len(m.windows)-1] = nil
			m.windows = m.windows[:len(m.windows)-1]
			log.Debugf("unmapped window for surface %d", s.ID())
			return
		}
	}
}

// Find returns the window of s.
func (m *WindowMap) Find(s *Surface) (*Window, bool) {
	for _, w := range m.windows {
		if w.surface == s {
			return w, true
		}
	}
	return nil, false
}

func (m *WindowMap) Len() int {
	return len(m.windows)
}

// WithWindowsFromBottomToTop calls fn for every window, bottom first.
func (m *WindowMap) WithWindowsFromBottomToTop(fn func(w *Window, at types.Point)) {
	for _, w := range m.windows {
		fn(w, w.location)
	}
}

// Refresh drops windows whose surface is gone.
func (m *WindowMap) Refresh() {
	kept := m.windows[:0]
	for _, w := range m.windows {
		if w.Surface() == nil {
			log.Debugf("unmapped dead window at %v", w.location)
			continue
		}
		kept = append(kept, w)
	}
	for i := len(kept); i < len(m.windows); i++ {
		m.windows[i] = nil
	}
	m.windows = kept
}
