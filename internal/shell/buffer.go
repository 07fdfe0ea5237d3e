package shell

import (
	"fmt"

	"github.com/matjam/drmcomp/internal/render"
	"github.com/matjam/drmcomp/internal/types"
)

// Buffer is the content a client attached to a surface. It is either an
// *EGLBuffer or a *ShmBuffer.
type Buffer interface {
	Size() types.Size
	isBuffer()
}

// EGLBuffer is a GPU client buffer already imported as EGL images.
// OnRelease, if set, runs once when no surface uses the buffer any more.
type EGLBuffer struct {
	Images    render.EGLImages
	OnRelease func()
}

func (b *EGLBuffer) release() {
	if b.OnRelease != nil {
		b.OnRelease()
		b.OnRelease = nil
	}
}

func (b *EGLBuffer) Size() types.Size {
	return types.Size{W: b.Images.Width, H: b.Images.Height}
}

func (*EGLBuffer) isBuffer() {}

// ShmBuffer is a copy of a shared memory buffer, tightly packed RGBA8.
type ShmBuffer struct {
	Data          []byte
	Width, Height int
}

func (b *ShmBuffer) Size() types.Size {
	return types.Size{W: b.Width, H: b.Height}
}

func (*ShmBuffer) isBuffer() {}

func releaseBuffer(b Buffer) {
	if eb, ok := b.(*EGLBuffer); ok {
		eb.release()
	}
}

// ShmFormat is a wl_shm pixel format code.
type ShmFormat uint32

const (
	ShmFormatARGB8888 ShmFormat = 0
	ShmFormatXRGB8888 ShmFormat = 1
)

// NewShmBuffer copies a region of a shm pool into a packed RGBA8 ShmBuffer.
// wl_shm formats are little endian, so ARGB8888 is stored as B, G, R, A bytes.
func NewShmBuffer(pool []byte, offset, width, height, stride int, format ShmFormat) (*ShmBuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid shm buffer size %dx%d", width, height)
	}
	if stride < width*4 {
		return nil, fmt.Errorf("shm stride %d too small for width %d", stride, width)
	}
	if offset < 0 || offset+stride*(height-1)+width*4 > len(pool) {
		return nil, fmt.Errorf("shm buffer exceeds pool of %d bytes", len(pool))
	}
	if format != ShmFormatARGB8888 && format != ShmFormatXRGB8888 {
		return nil, fmt.Errorf("unsupported shm format %d", format)
	}

	data := make([]byte, width*height*4)
	for y := 0; y < height; y++ {
		src := pool[offset+y*stride : offset+y*stride+width*4]
		dst := data[y*width*4 : (y+1)*width*4]
		for x := 0; x < width*4; x += 4 {
			dst[x+0] = src[x+2]
			dst[x+1] = src[x+1]
			dst[x+2] = src[x+0]
			if format == ShmFormatXRGB8888 {
				dst[x+3] = 0xff
			} else {
				dst[x+3] = src[x+3]
			}
		}
	}

	return &ShmBuffer{Data: data, Width: width, Height: height}, nil
}
