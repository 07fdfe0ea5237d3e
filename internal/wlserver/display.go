// Package wlserver is a thin binding of the libwayland-server display: the
// listening socket, the core and shell globals and per-tick client dispatch.
package wlserver

/*
#cgo pkg-config: wayland-server
#include "glue.h"
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/charmbracelet/log"
	"github.com/matjam/drmcomp/internal/shell"
)

var ErrDestroyed = errors.New("display destroyed")

// Display owns a wl_display and its event loop.
type Display struct {
	display *C.struct_wl_display
	loop    *C.struct_wl_event_loop
	socket  string
	comp    *Compositor
}

func New() (*Display, error) {
	d := C.wl_display_create()
	if d == nil {
		return nil, fmt.Errorf("failed to create wayland display")
	}
	return &Display{display: d, loop: C.wl_display_get_event_loop(d)}, nil
}

// AddSocketAuto listens on the first free wayland-N name in XDG_RUNTIME_DIR.
func (d *Display) AddSocketAuto() (string, error) {
	if d.display == nil {
		return "", ErrDestroyed
	}
	name := C.wl_display_add_socket_auto(d.display)
	if name == nil {
		return "", fmt.Errorf("failed to add wayland socket")
	}
	d.socket = C.GoString(name)
	return d.socket, nil
}

// AddSocket listens on a fixed socket name.
func (d *Display) AddSocket(name string) error {
	if d.display == nil {
		return ErrDestroyed
	}
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	if C.wl_display_add_socket(d.display, cname) != 0 {
		return fmt.Errorf("failed to add wayland socket %q", name)
	}
	d.socket = name
	return nil
}

// Socket returns the name clients connect to.
func (d *Display) Socket() string {
	return d.socket
}

// InitShm registers the wl_shm global.
func (d *Display) InitShm() error {
	if d.display == nil {
		return ErrDestroyed
	}
	if C.wl_display_init_shm(d.display) != 0 {
		return fmt.Errorf("failed to register wl_shm")
	}
	return nil
}

// InitCompositor registers wl_compositor, wl_subcompositor, wl_shell and
// xdg_wm_base. Client surfaces are handed to sh.
func (d *Display) InitCompositor(sh *shell.Shell) error {
	if d.display == nil {
		return ErrDestroyed
	}
	if d.comp != nil {
		return errors.New("compositor globals already registered")
	}
	comp, err := newCompositor(d.display, sh)
	if err != nil {
		return err
	}
	d.comp = comp
	return nil
}

// SetBufferImporter enables GPU client buffers. Without one only shm
// buffers are shown.
func (d *Display) SetBufferImporter(bi BufferImporter) {
	if d.comp != nil {
		d.comp.buffers = bi
	}
}

// EventFd is the descriptor that becomes readable when clients need service.
func (d *Display) EventFd() int {
	return int(C.wl_event_loop_get_fd(d.loop))
}

// DispatchClients runs pending client requests without blocking.
func (d *Display) DispatchClients() error {
	if d.display == nil {
		return ErrDestroyed
	}
	if C.wl_event_loop_dispatch(d.loop, 0) < 0 {
		return fmt.Errorf("wayland event loop dispatch failed")
	}
	return nil
}

// FlushClients sends buffered events to every client.
func (d *Display) FlushClients() {
	if d.display != nil {
		C.wl_display_flush_clients(d.display)
	}
}

// Ready is the event loop callback for EventFd.
func (d *Display) Ready(revents int16) {
	if err := d.DispatchClients(); err != nil {
		log.Warnf("%v", err)
	}
}

// Ptr returns the wl_display for EGL binding.
func (d *Display) Ptr() unsafe.Pointer {
	return unsafe.Pointer(d.display)
}

// DestroyClients disconnects every client, destroying their resources.
func (d *Display) DestroyClients() {
	if d.display != nil {
		C.wl_display_destroy_clients(d.display)
	}
}

func (d *Display) Destroy() {
	if d.display == nil {
		return
	}
	C.wl_display_destroy_clients(d.display)
	if d.comp != nil {
		d.comp.close()
		d.comp = nil
	}
	C.wl_display_destroy(d.display)
	d.display = nil
	d.loop = nil
}
