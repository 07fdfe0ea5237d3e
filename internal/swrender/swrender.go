// Package swrender is a software render.Backend on top of gogpu/gg. It backs
// headless mode, where frames go to memory instead of a CRTC, and lets the
// rendered output be saved as PNG.
package swrender

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/charmbracelet/log"
	"github.com/gogpu/gg"
	"github.com/matjam/drmcomp/internal/render"
	"github.com/matjam/drmcomp/internal/types"
)

var ErrForeignTexture = errors.New("texture was not created by the software renderer")

// Renderer draws into an in-memory RGBA canvas.
type Renderer struct {
	ctx      *gg.Context
	size     types.Size
	inFlight bool
	frames   uint64
}

func New(width, height int) (*Renderer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid canvas size %dx%d", width, height)
	}
	gg.SetLogger(slog.New(log.Default()))

	log.Infof("software renderer %dx%d", width, height)
	return &Renderer{
		ctx:  gg.NewContext(width, height),
		size: types.Size{W: width, H: height},
	}, nil
}

func (r *Renderer) Dimensions() types.Size {
	return r.size
}

// Frames is the number of finished frames.
func (r *Renderer) Frames() uint64 {
	return r.frames
}

func (r *Renderer) BeginFrame() (render.Frame, error) {
	if r.inFlight {
		return nil, render.ErrFrameInFlight
	}
	r.inFlight = true
	return &frame{r: r}, nil
}

// ImportMemoryTexture copies packed RGBA8 pixels into a texture.
func (r *Renderer) ImportMemoryTexture(data []byte, size types.Size) (render.Texture, error) {
	if size.Empty() {
		return nil, fmt.Errorf("invalid texture size %v", size)
	}
	if len(data) < size.W*size.H*4 {
		return nil, fmt.Errorf("texture data too short: %d bytes for %v", len(data), size)
	}

	img := image.NewRGBA(image.Rect(0, 0, size.W, size.H))
	copy(img.Pix, data)
	return &Texture{img: img, size: size}, nil
}

// Snapshot returns a copy of the last drawn canvas.
func (r *Renderer) Snapshot() image.Image {
	return r.ctx.Image()
}

func (r *Renderer) SavePNG(path string) error {
	if err := r.ctx.SavePNG(path); err != nil {
		return fmt.Errorf("save snapshot %s: %w", path, err)
	}
	log.Infof("saved snapshot to %s", path)
	return nil
}

func (r *Renderer) Close() error {
	return r.ctx.Close()
}

// Texture is a client buffer copied into system memory.
type Texture struct {
	img      *image.RGBA
	upright  *gg.ImageBuf
	inverted *gg.ImageBuf
	size     types.Size
	released bool
}

func (t *Texture) Size() types.Size {
	return t.size
}

func (t *Texture) Release() {
	t.released = true
	t.img = nil
	t.upright = nil
	t.inverted = nil
}

func (t *Texture) buf(yInverted bool) *gg.ImageBuf {
	if !yInverted {
		if t.upright == nil {
			t.upright = gg.ImageBufFromImage(t.img)
		}
		return t.upright
	}

	if t.inverted == nil {
		flipped := image.NewRGBA(t.img.Rect)
		stride := t.img.Stride
		h := t.size.H
		for y := 0; y < h; y++ {
			copy(flipped.Pix[y*stride:(y+1)*stride], t.img.Pix[(h-1-y)*stride:(h-y)*stride])
		}
		t.inverted = gg.ImageBufFromImage(flipped)
	}
	return t.inverted
}

type frame struct {
	r        *Renderer
	finished bool
}

func (f *frame) Clear(c render.Color) {
	if f.finished {
		return
	}
	f.r.ctx.ClearWithColor(gg.RGBA{R: float64(c.R), G: float64(c.G), B: float64(c.B), A: float64(c.A)})
}

func (f *frame) RenderTexture(tex render.Texture, q render.Quad) error {
	if f.finished {
		return render.ErrFrameFinished
	}
	t, ok := tex.(*Texture)
	if !ok {
		return ErrForeignTexture
	}
	if t.released {
		return errors.New("texture used after release")
	}

	// gg has no copy operator; opaque buffers blend to the same result
	f.r.ctx.DrawImageEx(t.buf(q.YInverted), gg.DrawImageOptions{
		X:             float64(q.Position.X),
		Y:             float64(q.Position.Y),
		DstWidth:      float64(q.Size.W),
		DstHeight:     float64(q.Size.H),
		Interpolation: gg.InterpNearest,
		Opacity:       1.0,
		BlendMode:     gg.BlendNormal,
	})
	return nil
}

func (f *frame) Finish() error {
	if f.finished {
		return render.ErrFrameFinished
	}
	f.finished = true
	f.r.inFlight = false
	f.r.frames++
	return nil
}
