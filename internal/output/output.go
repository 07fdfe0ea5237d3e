// Package output picks the connector, encoder, CRTC and mode to drive.
//
// The policy is deliberately the simplest one that works: the first connected
// connector, its first encoder, the encoder's current CRTC (or the first
// compatible one) and the connector's first mode. Nothing is ranked.
package output

import (
	"errors"
	"fmt"

	"github.com/NeowayLabs/drm/mode"
	"github.com/charmbracelet/log"
)

var (
	ErrNoConnectedOutput = errors.New("no connected output")
	ErrNoEncoder         = errors.New("connector has no encoder")
	ErrNoCompatibleCrtc  = errors.New("no crtc compatible with encoder")
	ErrNoMode            = errors.New("connector advertises no mode")
)

// ResourceSource is the part of the device the selector queries.
type ResourceSource interface {
	Resources() (*mode.Resources, error)
	Connector(id uint32) (*mode.Connector, error)
	Encoder(id uint32) (*mode.Encoder, error)
}

// Selection is the fixed output triple plus the encoder that joins it.
type Selection struct {
	Connector uint32
	Encoder   uint32
	Crtc      uint32
	Mode      mode.Info
}

func (s Selection) Width() int {
	return int(s.Mode.Hdisplay)
}

func (s Selection) Height() int {
	return int(s.Mode.Vdisplay)
}

// ModeName returns the kernel's name for the mode, e.g. "1920x1080".
func ModeName(m mode.Info) string {
	n := 0
	for n < len(m.Name) && m.Name[n] != 0 {
		n++
	}
	if n == 0 {
		return fmt.Sprintf("%dx%d", m.Hdisplay, m.Vdisplay)
	}
	return string(m.Name[:n])
}

func (s Selection) String() string {
	return fmt.Sprintf("connector %d, encoder %d, crtc %d, mode %s@%d",
		s.Connector, s.Encoder, s.Crtc, ModeName(s.Mode), s.Mode.Vrefresh)
}

// Select queries src and returns the output to bind. Every failure is final.
func Select(src ResourceSource) (Selection, error) {
	res, err := src.Resources()
	if err != nil {
		return Selection{}, err
	}

	conn, err := firstConnected(src, res.Connectors)
	if err != nil {
		return Selection{}, err
	}
	if len(conn.Encoders) == 0 {
		return Selection{}, fmt.Errorf("connector %d: %w", conn.ID, ErrNoEncoder)
	}

	// only the first encoder is considered
	enc, err := src.Encoder(conn.Encoders[0])
	if err != nil {
		return Selection{}, err
	}

	crtc, err := pickCrtc(enc, res.Crtcs)
	if err != nil {
		return Selection{}, err
	}

	if len(conn.Modes) == 0 {
		return Selection{}, fmt.Errorf("connector %d: %w", conn.ID, ErrNoMode)
	}

	sel := Selection{
		Connector: conn.ID,
		Encoder:   enc.ID,
		Crtc:      crtc,
		Mode:      conn.Modes[0],
	}
	log.Infof("selected %s", sel)
	return sel, nil
}

func firstConnected(src ResourceSource, ids []uint32) (*mode.Connector, error) {
	for _, id := range ids {
		conn, err := src.Connector(id)
		if err != nil {
			return nil, err
		}
		if conn.Connection == mode.Connected {
			return conn, nil
		}
		log.Debugf("connector %d not connected (state %d)", id, conn.Connection)
	}
	return nil, ErrNoConnectedOutput
}

// pickCrtc prefers the CRTC the encoder already drives. Otherwise it takes the
// first CRTC whose index is set in the encoder's possible-CRTC mask.
func pickCrtc(enc *mode.Encoder, crtcs []uint32) (uint32, error) {
	if enc.CrtcID != 0 {
		return enc.CrtcID, nil
	}
	for i, id := range crtcs {
		if i < 32 && enc.PossibleCrtcs&(1<<uint(i)) != 0 {
			return id, nil
		}
	}
	return 0, fmt.Errorf("encoder %d: %w", enc.ID, ErrNoCompatibleCrtc)
}
