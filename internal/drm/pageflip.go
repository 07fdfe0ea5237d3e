package drm

import (
	"fmt"
	"unsafe"

	"github.com/NeowayLabs/drm"
	"github.com/NeowayLabs/drm/ioctl"
)

const (
	// PageFlipEvent asks the kernel to report completion on the device file.
	PageFlipEvent = 0x01
)

type sysPageFlip struct {
	crtcID   uint32
	fbID     uint32
	flags    uint32
	reserved uint32
	userData uint64
}

// DRM_IOWR(0xB0, struct drm_mode_crtc_page_flip)
var IOCTLModePageFlip = ioctl.NewCode(ioctl.Read|ioctl.Write,
	uint16(unsafe.Sizeof(sysPageFlip{})), drm.IOCTLBase, 0xB0)

// PageFlip queues fb to be scanned out on crtc at the next vblank. With
// PageFlipEvent set, a flip-complete event carrying userData is delivered.
func (c *Card) PageFlip(crtc, fb uint32, flags uint32, userData uint64) error {
	req := &sysPageFlip{
		crtcID:   crtc,
		fbID:     fb,
		flags:    flags,
		userData: userData,
	}
	err := ioctl.Do(uintptr(c.file.Fd()), uintptr(IOCTLModePageFlip),
		uintptr(unsafe.Pointer(req)))
	if err != nil {
		return fmt.Errorf("page flip on crtc %d: %w", crtc, err)
	}
	return nil
}
