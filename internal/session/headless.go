package session

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/matjam/drmcomp/internal/ipc"
	"github.com/matjam/drmcomp/internal/scheduler"
	"github.com/matjam/drmcomp/internal/swrender"
)

// HeadlessTarget renders into memory and paces frames with a timer instead
// of vblank. Client GPU buffers are never imported.
func HeadlessTarget(width, height int, interval time.Duration) (Target, error) {
	r, err := swrender.New(width, height)
	if err != nil {
		return Target{}, fmt.Errorf("software renderer: %w", err)
	}

	refresh := uint32(0)
	if interval > 0 {
		refresh = uint32(time.Second / interval)
	}

	return Target{
		Name:    "headless",
		Backend: r,
		Output: ipc.OutputInfo{
			Mode:    fmt.Sprintf("%dx%d", width, height),
			Width:   width,
			Height:  height,
			Refresh: refresh,
		},
		NewFlipSource: func(h scheduler.FlipHandler) (FlipSource, error) {
			t, err := scheduler.NewTicker(interval, h)
			if err != nil {
				return nil, err
			}
			return t, nil
		},
		Close: func() {
			if err := r.Close(); err != nil {
				log.Debugf("close software renderer: %v", err)
			}
		},
	}, nil
}
