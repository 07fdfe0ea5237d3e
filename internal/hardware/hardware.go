// Package hardware assembles the DRM output: the card, the selected output
// and the GLES2 renderer bound to it, as a session target.
package hardware

import (
	"unsafe"

	"github.com/charmbracelet/log"
	"github.com/matjam/drmcomp/internal/drm"
	"github.com/matjam/drmcomp/internal/gbmrender"
	"github.com/matjam/drmcomp/internal/ipc"
	"github.com/matjam/drmcomp/internal/output"
	"github.com/matjam/drmcomp/internal/render"
	"github.com/matjam/drmcomp/internal/scheduler"
	"github.com/matjam/drmcomp/internal/session"
)

// Open claims the device, selects an output and binds a renderer to it.
// With accel set it also binds the renderer's EGL display to the wayland
// display so GPU client buffers can be drawn; failing that only logs.
//
// Must be called on the goroutine that will run the session.
func Open(device string, display unsafe.Pointer, accel bool) (session.Target, error) {
	card, err := drm.OpenCard(device)
	if err != nil {
		return session.Target{}, err
	}

	sel, err := output.Select(card)
	if err != nil {
		card.Close()
		return session.Target{}, err
	}
	log.Infof("selected %v", sel)

	r, err := gbmrender.Bind(card, sel.Crtc, sel.Mode, []uint32{sel.Connector})
	if err != nil {
		card.Close()
		return session.Target{}, err
	}

	var (
		importer render.ImageImporter
		binding  *gbmrender.WaylandBinding
	)
	if accel {
		binding, err = r.BindWaylandDisplay(display)
		if err != nil {
			log.Warnf("EGL hardware-acceleration enabled but not available: %v", err)
			binding = nil
		} else {
			log.Info("EGL hardware-acceleration enabled")
			importer = binding
		}
	}

	return session.Target{
		Name:     "drm",
		Backend:  r,
		Importer: importer,
		Output:   OutputInfo(sel),
		NewFlipSource: func(h scheduler.FlipHandler) (session.FlipSource, error) {
			return drm.NewEventSource(card, h), nil
		},
		PageFlipped: r.PageFlipped,
		Close: func() {
			if binding != nil {
				binding.Unbind()
			}
			r.Close()
			if err := card.Close(); err != nil {
				log.Debugf("close card: %v", err)
			}
		},
	}, nil
}

// OutputInfo describes a selection for status reports.
func OutputInfo(sel output.Selection) ipc.OutputInfo {
	return ipc.OutputInfo{
		Connector: sel.Connector,
		Encoder:   sel.Encoder,
		Crtc:      sel.Crtc,
		Mode:      output.ModeName(sel.Mode),
		Width:     sel.Width(),
		Height:    sel.Height(),
		Refresh:   sel.Mode.Vrefresh,
	}
}
