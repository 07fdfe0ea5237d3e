package swrender

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/matjam/drmcomp/internal/render"
	"github.com/matjam/drmcomp/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.RGBA) []byte {
	data := make([]byte, 0, w*h*4)
	for i := 0; i < w*h; i++ {
		data = append(data, c.R, c.G, c.B, c.A)
	}
	return data
}

func rgba8(c color.Color) color.RGBA {
	r, g, b, a := c.RGBA()
	return color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}
}

func TestFrameLifecycle(t *testing.T) {
	r, err := New(8, 8)
	require.NoError(t, err)
	defer r.Close()

	f, err := r.BeginFrame()
	require.NoError(t, err)

	_, err = r.BeginFrame()
	assert.ErrorIs(t, err, render.ErrFrameInFlight)

	require.NoError(t, f.Finish())
	assert.ErrorIs(t, f.Finish(), render.ErrFrameFinished)
	assert.Equal(t, uint64(1), r.Frames())

	_, err = r.BeginFrame()
	assert.NoError(t, err)
}

func TestRenderTexture_Placement(t *testing.T) {
	r, err := New(8, 8)
	require.NoError(t, err)
	defer r.Close()

	blue := color.RGBA{B: 255, A: 255}
	tex, err := r.ImportMemoryTexture(solid(2, 2, blue), types.Size{W: 2, H: 2})
	require.NoError(t, err)

	f, err := r.BeginFrame()
	require.NoError(t, err)
	f.Clear(render.Color{R: 1, A: 1})
	require.NoError(t, f.RenderTexture(tex, render.Quad{
		Position: types.Point{X: 3, Y: 3},
		Size:     types.Size{W: 2, H: 2},
		Blend:    true,
	}))
	require.NoError(t, f.Finish())

	img := r.Snapshot()
	inside := rgba8(img.At(3, 3))
	outside := rgba8(img.At(0, 0))
	assert.Greater(t, inside.B, uint8(200))
	assert.Less(t, inside.R, uint8(50))
	assert.Greater(t, outside.R, uint8(200))
	assert.Less(t, outside.B, uint8(50))
}

func TestRenderTexture_YInverted(t *testing.T) {
	r, err := New(1, 2)
	require.NoError(t, err)
	defer r.Close()

	data := append(solid(1, 1, color.RGBA{R: 255, A: 255}), solid(1, 1, color.RGBA{G: 255, A: 255})...)
	tex, err := r.ImportMemoryTexture(data, types.Size{W: 1, H: 2})
	require.NoError(t, err)

	f, err := r.BeginFrame()
	require.NoError(t, err)
	require.NoError(t, f.RenderTexture(tex, render.Quad{Size: types.Size{W: 1, H: 2}, YInverted: true}))
	require.NoError(t, f.Finish())

	top := rgba8(r.Snapshot().At(0, 0))
	assert.Greater(t, top.G, uint8(200))
	assert.Less(t, top.R, uint8(50))
}

func TestImportMemoryTexture_Rejects(t *testing.T) {
	r, err := New(4, 4)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ImportMemoryTexture(make([]byte, 4), types.Size{W: 2, H: 2})
	assert.Error(t, err)
	_, err = r.ImportMemoryTexture(nil, types.Size{})
	assert.Error(t, err)
}

func TestRenderTexture_ReleasedOrFinished(t *testing.T) {
	r, err := New(4, 4)
	require.NoError(t, err)
	defer r.Close()

	tex, err := r.ImportMemoryTexture(solid(1, 1, color.RGBA{A: 255}), types.Size{W: 1, H: 1})
	require.NoError(t, err)
	tex.Release()

	f, err := r.BeginFrame()
	require.NoError(t, err)
	assert.Error(t, f.RenderTexture(tex, render.Quad{Size: types.Size{W: 1, H: 1}}))
	require.NoError(t, f.Finish())
	assert.ErrorIs(t, f.RenderTexture(tex, render.Quad{}), render.ErrFrameFinished)
}

func TestSavePNG(t *testing.T) {
	r, err := New(4, 4)
	require.NoError(t, err)
	defer r.Close()

	f, err := r.BeginFrame()
	require.NoError(t, err)
	f.Clear(render.DefaultBackground)
	require.NoError(t, f.Finish())

	path := filepath.Join(t.TempDir(), "out.png")
	require.NoError(t, r.SavePNG(path))
	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, st.Size())
}
