package compositor

import (
	"errors"
	"testing"

	"github.com/matjam/drmcomp/internal/render"
	"github.com/matjam/drmcomp/internal/shell"
	"github.com/matjam/drmcomp/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTexture struct {
	size     types.Size
	released bool
}

func (t *fakeTexture) Size() types.Size { return t.size }
func (t *fakeTexture) Release()         { t.released = true }

type drawn struct {
	tex  render.Texture
	quad render.Quad
}

type fakeFrame struct {
	backend *fakeBackend
	clears  []render.Color
	draws   []drawn
}

func (f *fakeFrame) Clear(c render.Color) {
	f.clears = append(f.clears, c)
}

func (f *fakeFrame) RenderTexture(tex render.Texture, q render.Quad) error {
	f.draws = append(f.draws, drawn{tex: tex, quad: q})
	return nil
}

func (f *fakeFrame) Finish() error {
	f.backend.finished++
	return f.backend.finishErr
}

type fakeBackend struct {
	begun     int
	finished  int
	uploads   int
	finishErr error
	uploadErr error
	frames    []*fakeFrame
}

func (b *fakeBackend) BeginFrame() (render.Frame, error) {
	b.begun++
	f := &fakeFrame{backend: b}
	b.frames = append(b.frames, f)
	return f, nil
}

func (b *fakeBackend) Dimensions() types.Size {
	return types.Size{W: 640, H: 480}
}

func (b *fakeBackend) ImportMemoryTexture(data []byte, size types.Size) (render.Texture, error) {
	if b.uploadErr != nil {
		return nil, b.uploadErr
	}
	b.uploads++
	return &fakeTexture{size: size}, nil
}

func (b *fakeBackend) lastFrame() *fakeFrame {
	return b.frames[len(b.frames)-1]
}

type fakeImporter struct {
	imports int
}

func (i *fakeImporter) ImportImageTexture(images render.EGLImages) (render.Texture, error) {
	i.imports++
	return &fakeTexture{size: types.Size{W: images.Width, H: images.Height}}, nil
}

func shm(w, h int) *shell.ShmBuffer {
	return &shell.ShmBuffer{Data: make([]byte, w*h*4), Width: w, Height: h}
}

func eglBuffer(format render.Format, w, h int, inverted bool) *shell.EGLBuffer {
	return &shell.EGLBuffer{Images: render.EGLImages{
		Format:    format,
		Width:     w,
		Height:    h,
		YInverted: inverted,
		Planes:    []uintptr{1},
	}}
}

func TestRenderFrame_SubsurfaceOffset(t *testing.T) {
	backend := &fakeBackend{}
	windows := shell.NewWindowMap()

	root := shell.NewSurface()
	root.Attach(shm(50, 50))
	child := shell.NewSurface()
	child.Attach(shm(100, 100))
	require.NoError(t, root.AddSubsurface(child, types.Point{X: 10, Y: 10}))
	windows.Insert(root, types.Point{X: 5, Y: 5})

	c := New(backend, windows, nil, render.DefaultBackground)
	stats, err := c.RenderFrame()
	require.NoError(t, err)

	frame := backend.lastFrame()
	require.Len(t, frame.draws, 2)
	assert.Equal(t, render.Quad{Position: types.Point{X: 5, Y: 5}, Size: types.Size{W: 50, H: 50}, Blend: true}, frame.draws[0].quad)
	assert.Equal(t, render.Quad{Position: types.Point{X: 15, Y: 15}, Size: types.Size{W: 100, H: 100}, Blend: true}, frame.draws[1].quad)
	assert.False(t, frame.draws[1].quad.YInverted)
	assert.Equal(t, FrameStats{Drawn: 2, Uploaded: 2}, stats)
	assert.Equal(t, []render.Color{render.DefaultBackground}, frame.clears)
}

func TestRenderFrame_CacheHit(t *testing.T) {
	backend := &fakeBackend{}
	windows := shell.NewWindowMap()
	s := shell.NewSurface()
	s.Attach(shm(10, 10))
	windows.Insert(s, types.Point{})

	c := New(backend, windows, nil, render.DefaultBackground)
	_, err := c.RenderFrame()
	require.NoError(t, err)
	first := s.Texture()

	stats, err := c.RenderFrame()
	require.NoError(t, err)

	assert.Equal(t, 1, backend.uploads)
	assert.Equal(t, 0, stats.Uploaded)
	assert.Same(t, first, s.Texture())
	assert.Same(t, first, backend.lastFrame().draws[0].tex)

	// a new buffer invalidates the cache
	s.Attach(shm(20, 20))
	assert.True(t, first.(*fakeTexture).released)
	_, err = c.RenderFrame()
	require.NoError(t, err)
	assert.Equal(t, 2, backend.uploads)
}

func TestRenderFrame_UnsupportedFormatDropped(t *testing.T) {
	backend := &fakeBackend{}
	importer := &fakeImporter{}
	windows := shell.NewWindowMap()
	s := shell.NewSurface()
	s.Attach(eglBuffer(render.FormatYUV, 64, 64, false))
	windows.Insert(s, types.Point{})

	c := New(backend, windows, importer, render.DefaultBackground)
	stats, err := c.RenderFrame()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Dropped)
	assert.Nil(t, s.Buffer())
	assert.Nil(t, s.Texture())

	stats, err = c.RenderFrame()
	require.NoError(t, err)
	assert.Equal(t, FrameStats{}, stats)
	assert.Equal(t, 0, importer.imports)
	assert.Empty(t, backend.lastFrame().draws)
}

func TestRenderFrame_EGLBufferImported(t *testing.T) {
	backend := &fakeBackend{}
	importer := &fakeImporter{}
	windows := shell.NewWindowMap()
	s := shell.NewSurface()
	s.Attach(eglBuffer(render.FormatRGBA, 32, 16, true))
	windows.Insert(s, types.Point{X: 1, Y: 2})

	c := New(backend, windows, importer, render.DefaultBackground)
	_, err := c.RenderFrame()
	require.NoError(t, err)

	assert.Equal(t, 1, importer.imports)
	assert.Equal(t, 0, backend.uploads)
	draws := backend.lastFrame().draws
	require.Len(t, draws, 1)
	assert.True(t, draws[0].quad.YInverted)
	assert.Equal(t, types.Size{W: 32, H: 16}, draws[0].quad.Size)
}

func TestRenderFrame_NoImporterKeepsBuffer(t *testing.T) {
	backend := &fakeBackend{}
	windows := shell.NewWindowMap()
	s := shell.NewSurface()
	s.Attach(eglBuffer(render.FormatRGB, 8, 8, false))
	windows.Insert(s, types.Point{})

	c := New(backend, windows, nil, render.DefaultBackground)
	stats, err := c.RenderFrame()
	require.NoError(t, err)

	assert.Equal(t, FrameStats{}, stats)
	assert.NotNil(t, s.Buffer())
	assert.Equal(t, 1, backend.finished)
}

func TestRenderFrame_UndrawableParentSkipsSubtree(t *testing.T) {
	backend := &fakeBackend{}
	windows := shell.NewWindowMap()

	root := shell.NewSurface()
	root.Attach(shm(10, 10))
	bare := shell.NewSurface() // no buffer
	grandchild := shell.NewSurface()
	grandchild.Attach(shm(4, 4))
	sibling := shell.NewSurface()
	sibling.Attach(shm(6, 6))
	require.NoError(t, root.AddSubsurface(bare, types.Point{X: 1, Y: 1}))
	require.NoError(t, bare.AddSubsurface(grandchild, types.Point{X: 2, Y: 2}))
	require.NoError(t, root.AddSubsurface(sibling, types.Point{X: 3, Y: 3}))
	windows.Insert(root, types.Point{})

	c := New(backend, windows, nil, render.DefaultBackground)
	stats, err := c.RenderFrame()
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Drawn)
	assert.Nil(t, grandchild.Texture())
	for _, d := range backend.lastFrame().draws {
		assert.NotEqual(t, types.Size{W: 4, H: 4}, d.quad.Size)
	}
}

func TestRenderFrame_EmptyStackFinishesOnce(t *testing.T) {
	backend := &fakeBackend{}
	c := New(backend, shell.NewWindowMap(), nil, render.Color{R: 1, A: 1})

	stats, err := c.RenderFrame()
	require.NoError(t, err)
	assert.Equal(t, FrameStats{}, stats)
	assert.Equal(t, 1, backend.begun)
	assert.Equal(t, 1, backend.finished)
	assert.Equal(t, []render.Color{{R: 1, A: 1}}, backend.lastFrame().clears)
}

func TestRenderFrame_UploadFailureStillFinishes(t *testing.T) {
	backend := &fakeBackend{uploadErr: errors.New("out of memory")}
	windows := shell.NewWindowMap()
	s := shell.NewSurface()
	s.Attach(shm(10, 10))
	windows.Insert(s, types.Point{})

	c := New(backend, windows, nil, render.DefaultBackground)
	stats, err := c.RenderFrame()
	require.NoError(t, err)
	assert.Equal(t, FrameStats{}, stats)
	assert.NotNil(t, s.Buffer())
	assert.Equal(t, 1, backend.finished)
}

func TestRenderFrame_FinishError(t *testing.T) {
	cause := errors.New("page flip: EBUSY")
	backend := &fakeBackend{finishErr: cause}
	c := New(backend, shell.NewWindowMap(), nil, render.DefaultBackground)

	_, err := c.RenderFrame()
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, backend.finished)
}

func TestRenderFrame_DeadWindowIgnored(t *testing.T) {
	backend := &fakeBackend{}
	windows := shell.NewWindowMap()
	s := shell.NewSurface()
	s.Attach(shm(10, 10))
	windows.Insert(s, types.Point{})
	s.Destroy()

	c := New(backend, windows, nil, render.DefaultBackground)
	stats, err := c.RenderFrame()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Drawn)
}
