package gbmrender

/*
#include "gbmrender.h"
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v3.1/gles2"
	"github.com/matjam/drmcomp/internal/render"
	"github.com/matjam/drmcomp/internal/types"
)

var ErrBindUnsupported = errors.New("EGL_WL_bind_wayland_display is not available")

// WaylandBinding is the renderer's EGL display bound to a wl_display, which
// lets GPU client buffers be sampled without a copy. It implements
// render.ImageImporter.
type WaylandBinding struct {
	r           *Renderer
	display     unsafe.Pointer
	imageTarget unsafe.Pointer
	queryBuffer unsafe.Pointer
	createImage unsafe.Pointer
	destroyImg  unsafe.Pointer
	bound       bool
}

// BindWaylandDisplay binds the EGL display to the given wl_display. The
// caller decides what to do on failure; the renderer keeps working without
// the binding.
func (r *Renderer) BindWaylandDisplay(display unsafe.Pointer) (*WaylandBinding, error) {
	bind := getProcAddress("eglBindWaylandDisplayWL")
	if bind == nil {
		return nil, ErrBindUnsupported
	}
	target := getProcAddress("glEGLImageTargetTexture2DOES")
	if target == nil {
		return nil, errors.New("glEGLImageTargetTexture2DOES is not available")
	}

	if C.call_bind_wl_display(bind, r.eglDisplay, display) == C.EGL_FALSE {
		return nil, fmt.Errorf("eglBindWaylandDisplayWL failed: %s", eglError())
	}

	return &WaylandBinding{
		r:           r,
		display:     display,
		imageTarget: target,
		queryBuffer: getProcAddress("eglQueryWaylandBufferWL"),
		createImage: getProcAddress("eglCreateImageKHR"),
		destroyImg:  getProcAddress("eglDestroyImageKHR"),
		bound:       true,
	}, nil
}

// ImportImageTexture wraps the first plane of an RGB or RGBA client buffer
// in a texture.
func (b *WaylandBinding) ImportImageTexture(images render.EGLImages) (render.Texture, error) {
	if !b.bound {
		return nil, errors.New("wayland display is unbound")
	}
	if !images.Format.Supported() {
		return nil, fmt.Errorf("cannot import %s buffer as a 2D texture", images.Format)
	}
	if len(images.Planes) == 0 {
		return nil, errors.New("buffer has no EGL image")
	}

	id := newTexture()
	C.call_image_target_texture(b.imageTarget, C.uint(gles2.TEXTURE_2D), unsafe.Pointer(images.Planes[0]))
	gles2.BindTexture(gles2.TEXTURE_2D, 0)

	if e := gles2.GetError(); e != gles2.NO_ERROR {
		gles2.DeleteTextures(1, &id)
		return nil, fmt.Errorf("EGL image import failed: GL error %#x", e)
	}
	return &Texture{id: id, size: types.Size{W: images.Width, H: images.Height}}, nil
}

var bufferFormats = map[C.EGLint]struct {
	format render.Format
	planes int
}{
	C.EGL_TEXTURE_RGB:         {render.FormatRGB, 1},
	C.EGL_TEXTURE_RGBA:        {render.FormatRGBA, 1},
	C.EGL_TEXTURE_EXTERNAL_WL: {render.FormatExternal, 1},
	C.EGL_TEXTURE_Y_UV_WL:     {render.FormatYUV, 2},
	C.EGL_TEXTURE_Y_U_V_WL:    {render.FormatYUV3, 3},
	C.EGL_TEXTURE_Y_XUXV_WL:   {render.FormatYXUXV, 2},
}

// QueryBuffer creates one EGL image per plane of a wl_buffer resource. It
// fails for buffers that are not EGL buffers, such as shm buffers.
func (b *WaylandBinding) QueryBuffer(buffer unsafe.Pointer) (render.EGLImages, error) {
	if !b.bound {
		return render.EGLImages{}, errors.New("wayland display is unbound")
	}
	if b.queryBuffer == nil || b.createImage == nil {
		return render.EGLImages{}, errors.New("eglQueryWaylandBufferWL is not available")
	}

	query := func(attr C.EGLint) (C.EGLint, bool) {
		var v C.EGLint
		ok := C.call_query_wl_buffer(b.queryBuffer, b.r.eglDisplay, buffer, attr, &v) != C.EGL_FALSE
		return v, ok
	}

	texFormat, ok := query(C.EGL_TEXTURE_FORMAT)
	if !ok {
		return render.EGLImages{}, errors.New("not an EGL buffer")
	}
	f, ok := bufferFormats[texFormat]
	if !ok {
		return render.EGLImages{}, fmt.Errorf("unknown EGL buffer format %#x", int(texFormat))
	}
	width, _ := query(C.EGL_WIDTH)
	height, _ := query(C.EGL_HEIGHT)
	inverted, ok := query(C.EGL_WAYLAND_Y_INVERTED_WL)

	images := render.EGLImages{
		Format:    f.format,
		Width:     int(width),
		Height:    int(height),
		YInverted: !ok || inverted != 0, // drivers without the query are y-inverted
	}
	for plane := 0; plane < f.planes; plane++ {
		img := C.call_create_wl_image(b.createImage, b.r.eglDisplay, buffer, C.EGLint(plane))
		if img == nil {
			b.DestroyImages(images)
			return render.EGLImages{}, fmt.Errorf("eglCreateImageKHR for plane %d failed: %s", plane, eglError())
		}
		images.Planes = append(images.Planes, uintptr(img))
	}
	return images, nil
}

// DestroyImages frees images created by QueryBuffer.
func (b *WaylandBinding) DestroyImages(images render.EGLImages) {
	if !b.bound || b.destroyImg == nil {
		return
	}
	for _, img := range images.Planes {
		C.call_destroy_image(b.destroyImg, b.r.eglDisplay, unsafe.Pointer(img))
	}
}

// Unbind releases the binding; later imports fail.
func (b *WaylandBinding) Unbind() {
	if !b.bound {
		return
	}
	if unbind := getProcAddress("eglUnbindWaylandDisplayWL"); unbind != nil {
		C.call_bind_wl_display(unbind, b.r.eglDisplay, b.display)
	}
	b.bound = false
}
