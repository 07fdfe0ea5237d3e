// Package gbmrender is the hardware render.Backend: a GLES2 context on a GBM
// scanout surface of the DRM card, presented with page flips.
package gbmrender

/*
#cgo pkg-config: gbm egl
#cgo LDFLAGS: -ldl
#include "gbmrender.h"
*/
import "C"

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/NeowayLabs/drm/mode"
	"github.com/charmbracelet/log"
	"github.com/go-gl/gl/v3.1/gles2"
	"github.com/matjam/drmcomp/internal/drm"
	"github.com/matjam/drmcomp/internal/render"
	"github.com/matjam/drmcomp/internal/types"
)

// GBM_FORMAT_XRGB8888, fourcc 'XR24'
const formatXRGB8888 = 0x34325258

var ErrNoFrontBuffer = errors.New("gbm surface has no front buffer")

// Renderer owns the GPU context bound to one CRTC, mode and connector set
// for its whole lifetime.
type Renderer struct {
	card       *drm.Card
	crtc       uint32
	connectors []uint32
	mode       mode.Info
	size       types.Size

	gbm  *C.struct_gbm_device
	surf *C.struct_gbm_surface

	eglDisplay C.EGLDisplay
	eglContext C.EGLContext
	eglSurface C.EGLSurface

	program      uint32
	vbo          uint32
	attribPos    uint32
	attribTex    uint32
	uniformTex   int32
	uniformAlpha int32

	fbs      map[*C.struct_gbm_bo]uint32
	front    *C.struct_gbm_bo // on screen
	pending  *C.struct_gbm_bo // queued for the next flip
	modeset  bool
	inFlight bool

	saved *mode.Crtc // what the crtc showed before the first modeset
}

// Bind creates the GBM device and scanout surface on card, an EGL GLES2
// context on top of it, and the quad shader. The calling goroutine stays
// locked to its OS thread; every later call must come from it.
func Bind(card *drm.Card, crtc uint32, m mode.Info, connectors []uint32) (*Renderer, error) {
	runtime.LockOSThread() // Required: EGL contexts are current per OS thread

	r := &Renderer{
		card:       card,
		crtc:       crtc,
		connectors: append([]uint32(nil), connectors...),
		mode:       m,
		size:       types.Size{W: int(m.Hdisplay), H: int(m.Vdisplay)},
		fbs:        make(map[*C.struct_gbm_bo]uint32),
	}

	if saved, err := card.Crtc(crtc); err == nil {
		r.saved = saved
	} else {
		log.Debugf("crtc state not saved: %v", err)
	}

	if err := r.initGBM(); err != nil {
		r.Close()
		return nil, err
	}
	if err := r.initEGL(); err != nil {
		r.Close()
		return nil, err
	}
	if err := gles2.InitWithProcAddrFunc(getProcAddress); err != nil {
		r.Close()
		return nil, fmt.Errorf("gles2 init failed: %w", err)
	}
	if err := r.setupShaderProgram(); err != nil {
		r.Close()
		return nil, err
	}

	gles2.Viewport(0, 0, int32(r.size.W), int32(r.size.H))
	log.Infof("bound GLES2 renderer to crtc %d at %v (%s)", crtc, r.size,
		gles2.GoStr(gles2.GetString(gles2.RENDERER)))
	return r, nil
}

func getProcAddress(name string) unsafe.Pointer {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	return C.get_proc(cname)
}

func (r *Renderer) initGBM() error {
	r.gbm = C.gbm_create_device(C.int(r.card.Fd()))
	if r.gbm == nil {
		return fmt.Errorf("failed to create gbm device")
	}

	r.surf = C.gbm_surface_create(r.gbm, C.uint32_t(r.size.W), C.uint32_t(r.size.H),
		formatXRGB8888, C.uint32_t(C.GBM_BO_USE_SCANOUT|C.GBM_BO_USE_RENDERING))
	if r.surf == nil {
		return fmt.Errorf("failed to create %v gbm surface", r.size)
	}
	return nil
}

func (r *Renderer) initEGL() error {
	r.eglDisplay = C.get_gbm_display(r.gbm)
	if r.eglDisplay == 0 {
		return fmt.Errorf("failed to get EGL display")
	}
	if C.eglInitialize(r.eglDisplay, nil, nil) == C.EGL_FALSE {
		r.eglDisplay = 0
		return fmt.Errorf("failed to initialize EGL: %s", eglError())
	}
	if C.eglBindAPI(C.EGL_OPENGL_ES_API) == C.EGL_FALSE {
		return fmt.Errorf("failed to bind GLES API: %s", eglError())
	}

	var config C.EGLConfig
	if C.choose_config(r.eglDisplay, formatXRGB8888, &config) == 0 {
		return fmt.Errorf("no EGL config for XRGB8888 scanout")
	}

	ctxAttribs := []C.EGLint{
		C.EGL_CONTEXT_CLIENT_VERSION, 2,
		C.EGL_NONE,
	}
	r.eglContext = C.eglCreateContext(r.eglDisplay, config, nil, &ctxAttribs[0])
	if r.eglContext == nil {
		return fmt.Errorf("failed to create EGL context: %s", eglError())
	}

	r.eglSurface = C.create_window_surface(r.eglDisplay, config, r.surf)
	if r.eglSurface == nil {
		return fmt.Errorf("failed to create EGL surface: %s", eglError())
	}

	if C.eglMakeCurrent(r.eglDisplay, r.eglSurface, r.eglSurface, r.eglContext) == C.EGL_FALSE {
		return fmt.Errorf("failed to make EGL context current: %s", eglError())
	}
	return nil
}

func eglError() string {
	return fmt.Sprintf("EGL error %#x", int(C.eglGetError()))
}

func (r *Renderer) Dimensions() types.Size {
	return r.size
}

// BeginFrame starts drawing into the next back buffer. Only one frame may be
// in flight at a time.
func (r *Renderer) BeginFrame() (render.Frame, error) {
	if r.inFlight {
		return nil, render.ErrFrameInFlight
	}
	if C.eglMakeCurrent(r.eglDisplay, r.eglSurface, r.eglSurface, r.eglContext) == C.EGL_FALSE {
		return nil, fmt.Errorf("make current: %s", eglError())
	}
	r.inFlight = true

	gles2.Viewport(0, 0, int32(r.size.W), int32(r.size.H))
	gles2.UseProgram(r.program)
	return &frame{r: r}, nil
}

// present swaps the back buffer out to scanout. The first frame sets the
// mode; every frame queues a page flip whose completion is reported on the
// card.
func (r *Renderer) present() error {
	if C.eglSwapBuffers(r.eglDisplay, r.eglSurface) == C.EGL_FALSE {
		return fmt.Errorf("swap buffers: %s", eglError())
	}

	bo := C.gbm_surface_lock_front_buffer(r.surf)
	if bo == nil {
		return ErrNoFrontBuffer
	}

	fb, err := r.framebuffer(bo)
	if err != nil {
		C.gbm_surface_release_buffer(r.surf, bo)
		return err
	}

	if !r.modeset {
		if err := r.card.SetCrtc(r.crtc, fb, r.connectors, &r.mode); err != nil {
			C.gbm_surface_release_buffer(r.surf, bo)
			return err
		}
		r.modeset = true
		log.Debugf("mode set on crtc %d with fb %d", r.crtc, fb)
	}

	if err := r.card.PageFlip(r.crtc, fb, drm.PageFlipEvent, 0); err != nil {
		C.gbm_surface_release_buffer(r.surf, bo)
		return err
	}

	r.pending = bo
	return nil
}

// framebuffer returns the DRM framebuffer for a buffer object, creating it
// the first time the object is seen.
func (r *Renderer) framebuffer(bo *C.struct_gbm_bo) (uint32, error) {
	if fb, ok := r.fbs[bo]; ok {
		return fb, nil
	}

	width := uint16(C.gbm_bo_get_width(bo))
	height := uint16(C.gbm_bo_get_height(bo))
	stride := uint32(C.gbm_bo_get_stride(bo))
	fb, err := r.card.AddFB(width, height, 24, 32, stride, uint32(C.bo_handle(bo)))
	if err != nil {
		return 0, err
	}
	r.fbs[bo] = fb
	return fb, nil
}

// PageFlipped tells the renderer the queued buffer is now on screen, which
// returns the previously displayed one to the surface.
func (r *Renderer) PageFlipped() {
	if r.pending == nil {
		return
	}
	if r.front != nil {
		C.gbm_surface_release_buffer(r.surf, r.front)
	}
	r.front = r.pending
	r.pending = nil
}

func (r *Renderer) Close() {
	r.restoreCrtc()

	if r.program != 0 {
		gles2.DeleteProgram(r.program)
		r.program = 0
	}
	if r.vbo != 0 {
		gles2.DeleteBuffers(1, &r.vbo)
		r.vbo = 0
	}

	for bo, fb := range r.fbs {
		if err := r.card.RmFB(fb); err != nil {
			log.Debugf("cleanup: %v", err)
		}
		delete(r.fbs, bo)
	}
	if r.surf != nil {
		for _, bo := range []*C.struct_gbm_bo{r.front, r.pending} {
			if bo != nil {
				C.gbm_surface_release_buffer(r.surf, bo)
			}
		}
		r.front, r.pending = nil, nil
	}

	if r.eglDisplay != 0 {
		C.eglMakeCurrent(r.eglDisplay, nil, nil, nil)
		if r.eglSurface != nil {
			C.eglDestroySurface(r.eglDisplay, r.eglSurface)
			r.eglSurface = nil
		}
		if r.eglContext != nil {
			C.eglDestroyContext(r.eglDisplay, r.eglContext)
			r.eglContext = nil
		}
		C.eglTerminate(r.eglDisplay)
		r.eglDisplay = 0
	}

	if r.surf != nil {
		C.gbm_surface_destroy(r.surf)
		r.surf = nil
	}
	if r.gbm != nil {
		C.gbm_device_destroy(r.gbm)
		r.gbm = nil
	}
}

// restoreCrtc puts back the framebuffer and mode the crtc had before Bind, so
// the console reappears instead of a disabled output.
func (r *Renderer) restoreCrtc() {
	if !r.modeset || r.saved == nil || r.saved.ModeValid == 0 {
		return
	}
	if err := r.card.SetCrtc(r.crtc, r.saved.BufferID, r.connectors, &r.saved.Mode); err != nil {
		log.Debugf("restore crtc: %v", err)
	}
	r.modeset = false
}
