package shell

import (
	"errors"
	"sync/atomic"

	"github.com/matjam/drmcomp/internal/render"
	"github.com/matjam/drmcomp/internal/types"
)

var lastSurfaceID atomic.Uint64

// ErrRoleTaken is returned when a surface that already has a role is given another one.
var ErrRoleTaken = errors.New("surface already has a role")

// Role is what a surface is used for. Surfaces without a role are never drawn
// unless they are the root of a window.
type Role interface {
	roleName() string
}

// Subsurface places a surface relative to its parent.
type Subsurface struct {
	Location types.Point
}

func (*Subsurface) roleName() string { return "subsurface" }

// Toplevel is the role of a window root.
type Toplevel struct {
	Title string
}

func (*Toplevel) roleName() string { return "toplevel" }

// SubsurfaceLocation returns the parent relative offset when role is a subsurface.
func SubsurfaceLocation(role Role) (types.Point, bool) {
	if sub, ok := role.(*Subsurface); ok {
		return sub.Location, true
	}
	return types.Point{}, false
}

// Surface is a node of a surface tree together with its render state: the
// buffer attached by the client and the texture cached from it.
//
// A surface is only touched from the compositor thread.
type Surface struct {
	id       uint64
	alive    bool
	buffer   Buffer
	texture  render.Texture
	role     Role
	parent   *Surface
	children []*Surface // bottom to top
}

func NewSurface() *Surface {
	return &Surface{
		id:    lastSurfaceID.Add(1),
		alive: true,
	}
}

func (s *Surface) ID() uint64 {
	return s.id
}

func (s *Surface) Alive() bool {
	return s.alive
}

func (s *Surface) Buffer() Buffer {
	return s.buffer
}

func (s *Surface) Texture() render.Texture {
	return s.texture
}

// SetTexture stores the texture produced from the current buffer. A texture
// without a buffer is refused.
func (s *Surface) SetTexture(tex render.Texture) {
	if s.buffer == nil && tex != nil {
		tex.Release()
		return
	}
	if s.texture != nil && s.texture != tex {
		s.texture.Release()
	}
	s.texture = tex
}

// Attach replaces the buffer of the surface. The cached texture belongs to the
// previous contents, so it is released even when b is the current buffer.
func (s *Surface) Attach(b Buffer) {
	if s.texture != nil {
		s.texture.Release()
		s.texture = nil
	}
	if s.buffer != nil && s.buffer != b {
		releaseBuffer(s.buffer)
	}
	s.buffer = b
}

// DropBuffer forgets the buffer and its texture.
func (s *Surface) DropBuffer() {
	s.Attach(nil)
}

func (s *Surface) Role() Role {
	return s.role
}

// SetRole gives the surface its role; a role can only be set once.
func (s *Surface) SetRole(r Role) error {
	if s.role != nil {
		return ErrRoleTaken
	}
	s.role = r
	return nil
}

func (s *Surface) Parent() *Surface {
	return s.parent
}

func (s *Surface) Children() []*Surface {
	return s.children
}

// AddSubsurface makes child a subsurface of s at the given offset, stacked above
// the existing children.
func (s *Surface) AddSubsurface(child *Surface, location types.Point) error {
	if err := child.SetRole(&Subsurface{Location: location}); err != nil {
		return err
	}
	child.parent = s
	s.children = append(s.children, child)
	return nil
}

// SetSubsurfacePosition moves a subsurface relative to its parent.
func (s *Surface) SetSubsurfacePosition(location types.Point) {
	if sub, ok := s.role.(*Subsurface); ok {
		sub.Location = location
	}
}

// Destroy marks the surface dead, releases its render state and unlinks it
// from its parent. Children stay alive but are no longer reachable from the tree.
func (s *Surface) Destroy() {
	if !s.alive {
		return
	}
	s.alive = false
	s.DropBuffer()
	if s.parent != nil {
		s.parent.removeChild(s)
		s.parent = nil
	}
	for _, c := range s.children {
		c.parent = nil
	}
	s.children = nil
}

func (s *Surface) removeChild(child *Surface) {
	for i, c := range s.children {
		if c == child {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}
