package render

import (
	"errors"

	"github.com/matjam/drmcomp/internal/types"
)

// ErrFrameInFlight is returned by BeginFrame while a previous frame has not been finished.
var ErrFrameInFlight = errors.New("a frame is already in flight")

// ErrFrameFinished is returned when drawing into or finishing a frame twice.
var ErrFrameFinished = errors.New("frame already finished")

// Color is a straight-alpha RGBA color with components in [0, 1].
type Color struct {
	R, G, B, A float32
}

// DefaultBackground is the clear color used when nothing else is configured.
var DefaultBackground = Color{R: 0.8, G: 0.8, B: 0.9, A: 1.0}

// Texture is a GPU (or software) resident copy of a client buffer.
type Texture interface {
	Size() types.Size
	Release() // Free the underlying resources; the texture must not be used afterwards
}

// Quad describes where a texture is drawn on the output.
type Quad struct {
	Position  types.Point // top left corner in output pixels
	Size      types.Size  // destination size in output pixels
	YInverted bool        // sample the texture upside down
	Blend     bool        // alpha blend over what is already in the frame
}

// Frame is a scoped drawing target. Exactly one Finish call must follow every
// BeginFrame, on every path.
type Frame interface {
	Clear(c Color)
	RenderTexture(tex Texture, q Quad) error
	Finish() error
}

// Backend is a renderer bound to one output for its whole lifetime.
type Backend interface {
	BeginFrame() (Frame, error)
	Dimensions() types.Size
	ImportMemoryTexture(data []byte, size types.Size) (Texture, error)
}

// ImageImporter imports GPU client buffers without copying them. It is only
// available when the display was bound to the GPU context at startup.
type ImageImporter interface {
	ImportImageTexture(images EGLImages) (Texture, error)
}
