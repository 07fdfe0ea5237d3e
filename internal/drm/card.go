// Package drm wraps the kernel mode-setting device: opening the card,
// querying its resources, scanning out framebuffers and reading the events
// the kernel reports back on the device file.
package drm

import (
	"fmt"
	"os"

	"github.com/NeowayLabs/drm"
	"github.com/NeowayLabs/drm/mode"
	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

// DefaultDevice is the card used when nothing else is configured.
const DefaultDevice = "/dev/dri/card0"

// Card is an open, read/write handle on a DRM device node.
type Card struct {
	file *os.File
}

// OpenCard opens the device node at path for reading and writing.
func OpenCard(path string) (*Card, error) {
	file, err := os.OpenFile(path, os.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open drm device %s: %w", path, err)
	}

	c := &Card{file: file}
	if v, err := drm.GetVersion(file); err == nil {
		log.Infof("opened %s (driver %s)", path, v.Name)
	} else {
		log.Infof("opened %s", path)
	}
	return c, nil
}

// Fd returns the raw descriptor for event loop registration.
func (c *Card) Fd() uintptr {
	return c.file.Fd()
}

func (c *Card) Close() error {
	return c.file.Close()
}

func (c *Card) Resources() (*mode.Resources, error) {
	res, err := mode.GetResources(c.file)
	if err != nil {
		return nil, fmt.Errorf("get resources: %w", err)
	}
	return res, nil
}

func (c *Card) Connector(id uint32) (*mode.Connector, error) {
	conn, err := mode.GetConnector(c.file, id)
	if err != nil {
		return nil, fmt.Errorf("get connector %d: %w", id, err)
	}
	return conn, nil
}

func (c *Card) Encoder(id uint32) (*mode.Encoder, error) {
	enc, err := mode.GetEncoder(c.file, id)
	if err != nil {
		return nil, fmt.Errorf("get encoder %d: %w", id, err)
	}
	return enc, nil
}

// Crtc reads the current state of a crtc.
func (c *Card) Crtc(id uint32) (*mode.Crtc, error) {
	crtc, err := mode.GetCrtc(c.file, id)
	if err != nil {
		return nil, fmt.Errorf("get crtc %d: %w", id, err)
	}
	return crtc, nil
}

// SetCrtc scans out fb on crtc with the given mode, driving connectors.
func (c *Card) SetCrtc(crtc, fb uint32, connectors []uint32, m *mode.Info) error {
	var first *uint32
	if len(connectors) > 0 {
		first = &connectors[0]
	}
	if err := mode.SetCrtc(c.file, crtc, fb, 0, 0, first, len(connectors), m); err != nil {
		return fmt.Errorf("set crtc %d: %w", crtc, err)
	}
	return nil
}

// AddFB registers a buffer object as a framebuffer and returns its id.
func (c *Card) AddFB(width, height uint16, depth, bpp uint8, pitch, handle uint32) (uint32, error) {
	id, err := mode.AddFB(c.file, width, height, depth, bpp, pitch, handle)
	if err != nil {
		return 0, fmt.Errorf("add framebuffer: %w", err)
	}
	return id, nil
}

func (c *Card) RmFB(id uint32) error {
	if err := mode.RmFB(c.file, id); err != nil {
		return fmt.Errorf("remove framebuffer %d: %w", id, err)
	}
	return nil
}
