package output

import (
	"errors"
	"testing"

	"github.com/NeowayLabs/drm/mode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCard struct {
	res        *mode.Resources
	connectors map[uint32]*mode.Connector
	encoders   map[uint32]*mode.Encoder
	loaded     []uint32
}

func (c *fakeCard) Resources() (*mode.Resources, error) {
	return c.res, nil
}

func (c *fakeCard) Connector(id uint32) (*mode.Connector, error) {
	c.loaded = append(c.loaded, id)
	conn, ok := c.connectors[id]
	if !ok {
		return nil, errors.New("no such connector")
	}
	return conn, nil
}

func (c *fakeCard) Encoder(id uint32) (*mode.Encoder, error) {
	enc, ok := c.encoders[id]
	if !ok {
		return nil, errors.New("no such encoder")
	}
	return enc, nil
}

func testMode(w, h uint16) mode.Info {
	return mode.Info{Hdisplay: w, Vdisplay: h, Vrefresh: 60}
}

func newFakeCard() *fakeCard {
	return &fakeCard{
		res: &mode.Resources{
			Connectors: []uint32{10, 11},
			Crtcs:      []uint32{30, 31, 32},
		},
		connectors: map[uint32]*mode.Connector{
			10: {
				ID:         10,
				Connection: mode.Disconnected,
				Encoders:   []uint32{20},
				Modes:      []mode.Info{testMode(640, 480)},
			},
			11: {
				ID:         11,
				Connection: mode.Connected,
				Encoders:   []uint32{21, 20},
				Modes:      []mode.Info{testMode(1920, 1080), testMode(1280, 720)},
			},
		},
		encoders: map[uint32]*mode.Encoder{
			20: {ID: 20, CrtcID: 30, PossibleCrtcs: 0b001},
			21: {ID: 21, CrtcID: 32, PossibleCrtcs: 0b110},
		},
	}
}

func TestSelect_SecondConnectorConnected(t *testing.T) {
	card := newFakeCard()

	sel, err := Select(card)
	require.NoError(t, err)

	assert.Equal(t, uint32(11), sel.Connector)
	assert.Equal(t, uint32(21), sel.Encoder)
	assert.Equal(t, uint32(32), sel.Crtc)
	assert.Equal(t, 1920, sel.Width())
	assert.Equal(t, 1080, sel.Height())
}

func TestSelect_FirstConnectedWins(t *testing.T) {
	card := newFakeCard()
	card.connectors[10].Connection = mode.Connected

	sel, err := Select(card)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), sel.Connector)
	assert.Equal(t, uint32(20), sel.Encoder)
	assert.Equal(t, 640, sel.Width())
	// stops enumerating at the first connected connector
	assert.Equal(t, []uint32{10}, card.loaded)
}

func TestSelect_NoConnectedOutput(t *testing.T) {
	card := newFakeCard()
	card.connectors[11].Connection = mode.UnknownConnection

	_, err := Select(card)
	assert.ErrorIs(t, err, ErrNoConnectedOutput)
}

func TestSelect_CrtcPreference(t *testing.T) {
	tests := []struct {
		name     string
		current  uint32
		possible uint32
		want     uint32
		wantErr  error
	}{
		{"current crtc preferred", 30, 0b110, 30, nil},
		{"first compatible by index", 0, 0b110, 31, nil},
		{"only last compatible", 0, 0b100, 32, nil},
		{"mask beyond resource set", 0, 0b1000, 0, ErrNoCompatibleCrtc},
		{"empty mask", 0, 0, 0, ErrNoCompatibleCrtc},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := newFakeCard()
			card.encoders[21] = &mode.Encoder{ID: 21, CrtcID: tt.current, PossibleCrtcs: tt.possible}

			sel, err := Select(card)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, sel.Crtc)
		})
	}
}

func TestSelect_NoEncoderOrMode(t *testing.T) {
	card := newFakeCard()
	card.connectors[11].Encoders = nil
	_, err := Select(card)
	assert.ErrorIs(t, err, ErrNoEncoder)

	card = newFakeCard()
	card.connectors[11].Modes = nil
	_, err = Select(card)
	assert.ErrorIs(t, err, ErrNoMode)
}

func TestSelect_EncoderLoadFailure(t *testing.T) {
	card := newFakeCard()
	delete(card.encoders, 21)

	_, err := Select(card)
	assert.Error(t, err)
}

func TestModeName(t *testing.T) {
	m := testMode(800, 600)
	assert.Equal(t, "800x600", ModeName(m))

	copy(m.Name[:], "1024x768i")
	assert.Equal(t, "1024x768i", ModeName(m))
}
