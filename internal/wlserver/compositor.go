package wlserver

/*
#include "glue.h"
*/
import "C"

import (
	"errors"
	"runtime/cgo"
	"unsafe"

	"github.com/charmbracelet/log"
	"github.com/matjam/drmcomp/internal/render"
	"github.com/matjam/drmcomp/internal/shell"
	"github.com/matjam/drmcomp/internal/types"
)

// BufferImporter turns GPU client buffers into EGL images. It is set once
// the renderer's EGL display is bound to the wl_display.
type BufferImporter interface {
	QueryBuffer(buffer unsafe.Pointer) (render.EGLImages, error)
	DestroyImages(images render.EGLImages)
}

const (
	compositorVersion    = 4
	subcompositorVersion = 1
	shellVersion         = 1
	xdgWmBaseVersion     = 1
)

// request opcodes
const (
	compositorCreateSurface = 0
	compositorCreateRegion  = 1

	surfaceDestroy = 0
	surfaceAttach  = 1
	surfaceFrame   = 3
	surfaceCommit  = 6

	regionDestroy = 0

	subcompositorDestroy       = 0
	subcompositorGetSubsurface = 1

	subsurfaceDestroy     = 0
	subsurfaceSetPosition = 1

	shellGetShellSurface = 0

	shellSurfaceSetTitle = 8

	wmBaseDestroy          = 0
	wmBaseCreatePositioner = 1
	wmBaseGetXdgSurface    = 2

	positionerDestroy = 0

	xdgSurfaceDestroy     = 0
	xdgSurfaceGetToplevel = 1
	xdgSurfaceGetPopup    = 2

	toplevelDestroy  = 0
	toplevelSetTitle = 2

	popupDestroy = 0
)

// protocol error codes
const (
	subcompositorErrorBadSurface = 0
	shellErrorRole               = 0
	wmBaseErrorRole              = 0
	xdgSurfaceAlreadyConstructed = 2
)

// object is the server side of one protocol resource.
type object interface {
	request(c *Compositor, res *C.struct_wl_resource, opcode uint32, args *C.union_wl_argument)
	destroyed(c *Compositor)
}

// Compositor serves wl_compositor, wl_subcompositor, wl_shell and
// xdg_wm_base, turning client requests into shell operations.
type Compositor struct {
	shell   *shell.Shell
	buffers BufferImporter
	handle  cgo.Handle
	objects map[*C.struct_wl_resource]object
	globals []*C.struct_wl_global
	serial  uint32
}

func newCompositor(display *C.struct_wl_display, sh *shell.Shell) (*Compositor, error) {
	c := &Compositor{
		shell:   sh,
		objects: make(map[*C.struct_wl_resource]object),
	}
	c.handle = cgo.NewHandle(c)

	globals := []struct {
		iface   *C.struct_wl_interface
		version int
		kind    C.int
	}{
		{&C.wl_compositor_interface, compositorVersion, C.GLOBAL_COMPOSITOR},
		{&C.wl_subcompositor_interface, subcompositorVersion, C.GLOBAL_SUBCOMPOSITOR},
		{&C.wl_shell_interface, shellVersion, C.GLOBAL_SHELL},
		{&C.xdg_wm_base_interface, xdgWmBaseVersion, C.GLOBAL_XDG_WM_BASE},
	}
	for _, g := range globals {
		global := C.global_create(display, g.iface, C.int(g.version), C.uintptr_t(c.handle), g.kind)
		if global == nil {
			c.close()
			return nil, errors.New("failed to create " + C.GoString(g.iface.name) + " global")
		}
		c.globals = append(c.globals, global)
	}
	return c, nil
}

func (c *Compositor) close() {
	for _, g := range c.globals {
		C.global_destroy(g)
	}
	c.globals = nil
	c.handle.Delete()
}

func (c *Compositor) nextSerial() uint32 {
	c.serial++
	return c.serial
}

func (c *Compositor) create(client *C.struct_wl_client, iface *C.struct_wl_interface, version C.int, id uint32, obj object) *C.struct_wl_resource {
	res := C.resource_create(client, iface, version, C.uint32_t(id), C.uintptr_t(c.handle))
	if res == nil {
		return nil
	}
	c.objects[res] = obj
	return res
}

// createChild creates a resource for a new_id argument of parent's request.
func (c *Compositor) createChild(parent *C.struct_wl_resource, iface *C.struct_wl_interface, id uint32, obj object) *C.struct_wl_resource {
	return c.create(C.wl_resource_get_client(parent), iface, C.wl_resource_get_version(parent), id, obj)
}

func (c *Compositor) surfaceOf(res *C.struct_wl_resource) *surfaceObject {
	so, _ := c.objects[res].(*surfaceObject)
	return so
}

func postError(res *C.struct_wl_resource, code uint32, msg string) {
	cmsg := C.CString(msg)
	defer C.free(unsafe.Pointer(cmsg))
	C.post_error(res, C.uint32_t(code), cmsg)
}

func destroyResource(res *C.struct_wl_resource) {
	C.wl_resource_destroy(res)
}

//export drmcompBind
func drmcompBind(client *C.struct_wl_client, data unsafe.Pointer, version C.uint32_t, id C.uint32_t) {
	g := (*C.struct_global_data)(data)
	c := cgo.Handle(g.handle).Value().(*Compositor)

	var (
		iface *C.struct_wl_interface
		obj   object
	)
	switch g.kind {
	case C.GLOBAL_COMPOSITOR:
		iface, obj = &C.wl_compositor_interface, compositorObject{}
	case C.GLOBAL_SUBCOMPOSITOR:
		iface, obj = &C.wl_subcompositor_interface, subcompositorObject{}
	case C.GLOBAL_SHELL:
		iface, obj = &C.wl_shell_interface, shellObject{}
	case C.GLOBAL_XDG_WM_BASE:
		iface, obj = &C.xdg_wm_base_interface, wmBaseObject{}
	default:
		return
	}
	c.create(client, iface, C.int(version), uint32(id), obj)
}

//export drmcompDispatch
func drmcompDispatch(impl unsafe.Pointer, target unsafe.Pointer, opcode C.uint32_t, msg *C.struct_wl_message, args *C.union_wl_argument) C.int {
	c := cgo.Handle(uintptr(impl)).Value().(*Compositor)
	res := (*C.struct_wl_resource)(target)
	obj, ok := c.objects[res]
	if !ok {
		log.Debugf("request %s to unknown resource", C.GoString(msg.name))
		return 0
	}
	obj.request(c, res, uint32(opcode), args)
	return 0
}

//export drmcompResourceDestroyed
func drmcompResourceDestroyed(res *C.struct_wl_resource) {
	c := cgo.Handle(uintptr(C.wl_resource_get_user_data(res))).Value().(*Compositor)
	obj, ok := c.objects[res]
	if !ok {
		return
	}
	delete(c.objects, res)
	obj.destroyed(c)
}

type compositorObject struct{}

func (compositorObject) request(c *Compositor, res *C.struct_wl_resource, opcode uint32, args *C.union_wl_argument) {
	id := uint32(C.arg_new_id(args, 0))
	switch opcode {
	case compositorCreateSurface:
		c.createChild(res, &C.wl_surface_interface, id, &surfaceObject{surface: c.shell.CreateSurface()})
	case compositorCreateRegion:
		c.create(C.wl_resource_get_client(res), &C.wl_region_interface, 1, id, regionObject{})
	}
}

func (compositorObject) destroyed(*Compositor) {}

// Regions only matter for input and opaque hints, neither of which is used.
type regionObject struct{}

func (regionObject) request(c *Compositor, res *C.struct_wl_resource, opcode uint32, args *C.union_wl_argument) {
	if opcode == regionDestroy {
		destroyResource(res)
	}
}

func (regionObject) destroyed(*Compositor) {}

type surfaceObject struct {
	surface  *shell.Surface
	pending  *C.struct_buffer_ref
	attached bool

	// the EGL buffer on screen, reused when the client attaches it again
	egl    *shell.EGLBuffer
	eglRef *C.struct_buffer_ref
}

func (so *surfaceObject) request(c *Compositor, res *C.struct_wl_resource, opcode uint32, args *C.union_wl_argument) {
	switch opcode {
	case surfaceDestroy:
		destroyResource(res)
	case surfaceAttach:
		so.dropPending()
		if buf := C.arg_object(args, 0); buf != nil {
			so.pending = C.buffer_ref_new(buf)
		}
		so.attached = true
	case surfaceFrame:
		cb := c.create(C.wl_resource_get_client(res), &C.wl_callback_interface, 1, uint32(C.arg_new_id(args, 0)), callbackObject{})
		if cb == nil {
			return
		}
		c.shell.Frame(so.surface, func(ms uint32) {
			if _, alive := c.objects[cb]; alive {
				C.send_callback_done(cb, C.uint32_t(ms))
			}
		})
	case surfaceCommit:
		if so.attached {
			if b, ok := c.importBuffer(so); ok {
				c.shell.Attach(so.surface, b)
			}
			so.attached = false
		}
		c.shell.Commit(so.surface)
	}
}

func (so *surfaceObject) dropPending() {
	if so.pending != nil {
		C.buffer_ref_free(so.pending, 0)
		so.pending = nil
	}
}

func (so *surfaceObject) destroyed(c *Compositor) {
	so.dropPending()
	c.shell.DestroySurface(so.surface)
}

// importBuffer turns the pending wl_buffer into a shell buffer. A null
// attach gives a nil buffer; false means the attach is ignored.
func (c *Compositor) importBuffer(so *surfaceObject) (shell.Buffer, bool) {
	ref := so.pending
	so.pending = nil
	if ref == nil {
		return nil, true
	}
	buf := C.buffer_ref_resource(ref)
	if buf == nil {
		C.buffer_ref_free(ref, 0)
		return nil, false
	}

	if shm := C.wl_shm_buffer_get(buf); shm != nil {
		defer C.buffer_ref_free(ref, 1)

		width := int(C.wl_shm_buffer_get_width(shm))
		height := int(C.wl_shm_buffer_get_height(shm))
		stride := int(C.wl_shm_buffer_get_stride(shm))
		format := shell.ShmFormat(C.wl_shm_buffer_get_format(shm))

		C.wl_shm_buffer_begin_access(shm)
		pool := unsafe.Slice((*byte)(C.wl_shm_buffer_get_data(shm)), stride*height)
		b, err := shell.NewShmBuffer(pool, 0, width, height, stride, format)
		C.wl_shm_buffer_end_access(shm)
		if err != nil {
			log.Warnf("surface %d: %v", so.surface.ID(), err)
			return nil, false
		}
		return b, true
	}

	if c.buffers == nil {
		log.Warnf("surface %d: buffer is not shm and hardware acceleration is off", so.surface.ID())
		C.buffer_ref_free(ref, 0)
		return nil, false
	}
	if so.egl != nil && C.buffer_ref_resource(so.eglRef) == buf {
		C.buffer_ref_free(ref, 0)
		return so.egl, true
	}

	images, err := c.buffers.QueryBuffer(unsafe.Pointer(buf))
	if err != nil {
		log.Warnf("surface %d: %v", so.surface.ID(), err)
		C.buffer_ref_free(ref, 0)
		return nil, false
	}
	eb := &shell.EGLBuffer{Images: images}
	importer := c.buffers
	eb.OnRelease = func() {
		importer.DestroyImages(images)
		C.buffer_ref_free(ref, 1)
		if so.egl == eb {
			so.egl, so.eglRef = nil, nil
		}
	}
	so.egl, so.eglRef = eb, ref
	return eb, true
}

type callbackObject struct{}

func (callbackObject) request(*Compositor, *C.struct_wl_resource, uint32, *C.union_wl_argument) {}
func (callbackObject) destroyed(*Compositor)                                                  {}

type subcompositorObject struct{}

func (subcompositorObject) request(c *Compositor, res *C.struct_wl_resource, opcode uint32, args *C.union_wl_argument) {
	switch opcode {
	case subcompositorDestroy:
		destroyResource(res)
	case subcompositorGetSubsurface:
		child := c.surfaceOf(C.arg_object(args, 1))
		parent := c.surfaceOf(C.arg_object(args, 2))
		if child == nil || parent == nil || child == parent {
			postError(res, subcompositorErrorBadSurface, "bad surface")
			return
		}
		if err := c.shell.AddSubsurface(child.surface, parent.surface); err != nil {
			postError(res, subcompositorErrorBadSurface, err.Error())
			return
		}
		c.createChild(res, &C.wl_subsurface_interface, uint32(C.arg_new_id(args, 0)), &subsurfaceObject{surface: child})
	}
}

func (subcompositorObject) destroyed(*Compositor) {}

// Subsurfaces always behave as desynchronized; stacking requests are ignored.
type subsurfaceObject struct {
	surface *surfaceObject
}

func (ss *subsurfaceObject) request(c *Compositor, res *C.struct_wl_resource, opcode uint32, args *C.union_wl_argument) {
	switch opcode {
	case subsurfaceDestroy:
		destroyResource(res)
	case subsurfaceSetPosition:
		p := types.Point{X: int(C.arg_int(args, 0)), Y: int(C.arg_int(args, 1))}
		c.shell.SetSubsurfacePosition(ss.surface.surface, p)
	}
}

func (ss *subsurfaceObject) destroyed(c *Compositor) {
	c.shell.RemoveSubsurface(ss.surface.surface)
}

type shellObject struct{}

func (shellObject) request(c *Compositor, res *C.struct_wl_resource, opcode uint32, args *C.union_wl_argument) {
	if opcode != shellGetShellSurface {
		return
	}
	so := c.surfaceOf(C.arg_object(args, 1))
	if so == nil {
		return
	}
	// every wl_shell_surface is shown as a toplevel
	if err := c.shell.SetToplevel(so.surface, ""); err != nil {
		postError(res, shellErrorRole, err.Error())
		return
	}
	c.createChild(res, &C.wl_shell_surface_interface, uint32(C.arg_new_id(args, 0)), &shellSurfaceObject{surface: so})
}

func (shellObject) destroyed(*Compositor) {}

type shellSurfaceObject struct {
	surface *surfaceObject
}

func (ss *shellSurfaceObject) request(c *Compositor, res *C.struct_wl_resource, opcode uint32, args *C.union_wl_argument) {
	if opcode == shellSurfaceSetTitle {
		c.shell.SetTitle(ss.surface.surface, C.GoString(C.arg_string(args, 0)))
	}
}

func (ss *shellSurfaceObject) destroyed(c *Compositor) {
	c.shell.Unmap(ss.surface.surface)
}

type wmBaseObject struct{}

func (wmBaseObject) request(c *Compositor, res *C.struct_wl_resource, opcode uint32, args *C.union_wl_argument) {
	switch opcode {
	case wmBaseDestroy:
		destroyResource(res)
	case wmBaseCreatePositioner:
		c.createChild(res, &C.xdg_positioner_interface, uint32(C.arg_new_id(args, 0)), positionerObject{})
	case wmBaseGetXdgSurface:
		so := c.surfaceOf(C.arg_object(args, 1))
		if so == nil {
			return
		}
		c.createChild(res, &C.xdg_surface_interface, uint32(C.arg_new_id(args, 0)), &xdgSurfaceObject{wmBase: res, surface: so})
	}
}

func (wmBaseObject) destroyed(*Compositor) {}

// Positioners are accepted but popups are never placed.
type positionerObject struct{}

func (positionerObject) request(c *Compositor, res *C.struct_wl_resource, opcode uint32, args *C.union_wl_argument) {
	if opcode == positionerDestroy {
		destroyResource(res)
	}
}

func (positionerObject) destroyed(*Compositor) {}

type xdgSurfaceObject struct {
	wmBase      *C.struct_wl_resource
	surface     *surfaceObject
	constructed bool
}

func (xs *xdgSurfaceObject) request(c *Compositor, res *C.struct_wl_resource, opcode uint32, args *C.union_wl_argument) {
	switch opcode {
	case xdgSurfaceDestroy:
		destroyResource(res)
	case xdgSurfaceGetToplevel:
		if xs.constructed {
			postError(res, xdgSurfaceAlreadyConstructed, "xdg_surface already has a role object")
			return
		}
		if err := c.shell.SetToplevel(xs.surface.surface, ""); err != nil {
			postError(xs.wmBase, wmBaseErrorRole, err.Error())
			return
		}
		xs.constructed = true
		tl := c.createChild(res, &C.xdg_toplevel_interface, uint32(C.arg_new_id(args, 0)), &toplevelObject{surface: xs.surface})
		if tl == nil {
			return
		}
		// 0x0 lets the client pick its size
		C.send_xdg_toplevel_configure(tl, 0, 0)
		C.send_xdg_surface_configure(res, C.uint32_t(c.nextSerial()))
	case xdgSurfaceGetPopup:
		if xs.constructed {
			postError(res, xdgSurfaceAlreadyConstructed, "xdg_surface already has a role object")
			return
		}
		xs.constructed = true
		popup := c.createChild(res, &C.xdg_popup_interface, uint32(C.arg_new_id(args, 0)), popupObject{})
		if popup != nil {
			C.send_xdg_popup_done(popup)
		}
	}
}

func (xs *xdgSurfaceObject) destroyed(*Compositor) {}

type toplevelObject struct {
	surface *surfaceObject
}

func (tl *toplevelObject) request(c *Compositor, res *C.struct_wl_resource, opcode uint32, args *C.union_wl_argument) {
	switch opcode {
	case toplevelDestroy:
		destroyResource(res)
	case toplevelSetTitle:
		c.shell.SetTitle(tl.surface.surface, C.GoString(C.arg_string(args, 0)))
	}
}

func (tl *toplevelObject) destroyed(c *Compositor) {
	c.shell.Unmap(tl.surface.surface)
}

// Popups are dismissed as soon as they are created.
type popupObject struct{}

func (popupObject) request(c *Compositor, res *C.struct_wl_resource, opcode uint32, args *C.union_wl_argument) {
	if opcode == popupDestroy {
		destroyResource(res)
	}
}

func (popupObject) destroyed(*Compositor) {}
