// Package compositor draws the window stack into the output, one full redraw
// per completed page flip.
package compositor

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/matjam/drmcomp/internal/render"
	"github.com/matjam/drmcomp/internal/shell"
	"github.com/matjam/drmcomp/internal/types"
)

// FrameStats counts what a render pass did.
type FrameStats struct {
	Drawn    int // quads rendered
	Uploaded int // textures created this frame
	Dropped  int // buffers dropped for an unsupported format
}

// Compositor draws the window stack onto one output each frame.
type Compositor struct {
	backend    render.Backend
	windows    *shell.WindowMap
	importer   render.ImageImporter // nil without the EGL display binding
	background render.Color
}

// New returns a compositor drawing windows through backend. importer may be
// nil, in which case GPU client buffers are never drawn.
func New(backend render.Backend, windows *shell.WindowMap, importer render.ImageImporter, background render.Color) *Compositor {
	return &Compositor{
		backend:    backend,
		windows:    windows,
		importer:   importer,
		background: background,
	}
}

// RenderFrame clears the output, draws every reachable surface bottom to top
// and submits the frame. The frame is finished exactly once whatever happens
// while drawing.
func (c *Compositor) RenderFrame() (FrameStats, error) {
	var stats FrameStats

	frame, err := c.backend.BeginFrame()
	if err != nil {
		return stats, fmt.Errorf("begin frame: %w", err)
	}

	frame.Clear(c.background)
	c.windows.WithWindowsFromBottomToTop(func(w *shell.Window, at types.Point) {
		root := w.Surface()
		if root == nil {
			return
		}
		c.drawTree(frame, root, at, &stats)
	})

	if err := frame.Finish(); err != nil {
		return stats, fmt.Errorf("finish frame: %w", err)
	}
	return stats, nil
}

func (c *Compositor) drawTree(frame render.Frame, root *shell.Surface, at types.Point, stats *FrameStats) {
	shell.WalkUpward(root, at, func(s *shell.Surface, at types.Point) shell.TraversalAction {
		tex := s.Texture()
		if tex == nil {
			tex = c.populate(s, stats)
		}
		if tex == nil {
			return shell.Skip()
		}

		if loc, ok := shell.SubsurfaceLocation(s.Role()); ok {
			at = at.Add(loc)
		}

		q := render.Quad{Position: at, Size: tex.Size(), Blend: true}
		switch b := s.Buffer().(type) {
		case *shell.EGLBuffer:
			q.Size = b.Size()
			q.YInverted = b.Images.YInverted
		case *shell.ShmBuffer:
			q.Size = b.Size()
		}

		log.Debugf("Render window: surface %d at %v size %v", s.ID(), q.Position, q.Size)
		if err := frame.RenderTexture(tex, q); err != nil {
			log.Warnf("render surface %d: %v", s.ID(), err)
		} else {
			stats.Drawn++
		}
		return shell.Descend(at)
	})
}

// populate fills the texture slot of s from its current buffer. It returns
// nil when the surface cannot be drawn this frame.
func (c *Compositor) populate(s *shell.Surface, stats *FrameStats) render.Texture {
	var (
		tex render.Texture
		err error
	)

	switch b := s.Buffer().(type) {
	case nil:
		return nil
	case *shell.EGLBuffer:
		if !b.Images.Format.Supported() {
			log.Debugf("surface %d: dropping %s buffer, format not supported", s.ID(), b.Images.Format)
			s.DropBuffer()
			stats.Dropped++
			return nil
		}
		if c.importer == nil {
			return nil
		}
		tex, err = c.importer.ImportImageTexture(b.Images)
	case *shell.ShmBuffer:
		tex, err = c.backend.ImportMemoryTexture(b.Data, b.Size())
	default:
		log.Warnf("surface %d: unknown buffer type %T", s.ID(), b)
		return nil
	}

	if err != nil {
		log.Warnf("surface %d: texture upload failed: %v", s.ID(), err)
		return nil
	}

	s.SetTexture(tex)
	stats.Uploaded++
	return s.Texture()
}
