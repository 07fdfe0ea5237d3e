package gbmrender

import (
	"fmt"

	"github.com/go-gl/gl/v3.1/gles2"
	"github.com/matjam/drmcomp/internal/render"
	"github.com/matjam/drmcomp/internal/types"
)

// Texture is a GLES2 texture owned by a Renderer.
type Texture struct {
	id   uint32
	size types.Size
}

func (t *Texture) Size() types.Size {
	return t.size
}

func (t *Texture) Release() {
	if t.id != 0 {
		gles2.DeleteTextures(1, &t.id)
		t.id = 0
	}
}

func newTexture() uint32 {
	var id uint32
	gles2.GenTextures(1, &id)
	gles2.BindTexture(gles2.TEXTURE_2D, id)
	gles2.TexParameteri(gles2.TEXTURE_2D, gles2.TEXTURE_WRAP_S, gles2.CLAMP_TO_EDGE)
	gles2.TexParameteri(gles2.TEXTURE_2D, gles2.TEXTURE_WRAP_T, gles2.CLAMP_TO_EDGE)
	gles2.TexParameteri(gles2.TEXTURE_2D, gles2.TEXTURE_MIN_FILTER, gles2.LINEAR)
	gles2.TexParameteri(gles2.TEXTURE_2D, gles2.TEXTURE_MAG_FILTER, gles2.LINEAR)
	return id
}

// ImportMemoryTexture uploads packed RGBA8 pixels.
func (r *Renderer) ImportMemoryTexture(data []byte, size types.Size) (render.Texture, error) {
	if size.Empty() {
		return nil, fmt.Errorf("invalid texture size %v", size)
	}
	if len(data) < size.W*size.H*4 {
		return nil, fmt.Errorf("texture data too short: %d bytes for %v", len(data), size)
	}

	id := newTexture()
	gles2.PixelStorei(gles2.UNPACK_ALIGNMENT, 4)
	gles2.TexImage2D(gles2.TEXTURE_2D, 0, gles2.RGBA,
		int32(size.W), int32(size.H), 0,
		gles2.RGBA, gles2.UNSIGNED_BYTE, gles2.Ptr(data))
	gles2.BindTexture(gles2.TEXTURE_2D, 0)

	if e := gles2.GetError(); e != gles2.NO_ERROR {
		gles2.DeleteTextures(1, &id)
		return nil, fmt.Errorf("texture upload failed: GL error %#x", e)
	}
	return &Texture{id: id, size: size}, nil
}
