package render

import (
	"testing"

	"github.com/matjam/drmcomp/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestQuadVertices_FullScreen(t *testing.T) {
	v := QuadVertices(Quad{Size: types.Size{W: 100, H: 50}}, types.Size{W: 100, H: 50})

	// bottom left
	assert.Equal(t, []float32{-1, -1, 0, 1}, v[0:4])
	// top right
	assert.Equal(t, []float32{1, 1, 1, 0}, v[16:20])
}

func TestQuadVertices_Placement(t *testing.T) {
	q := Quad{Position: types.Point{X: 50, Y: 0}, Size: types.Size{W: 50, H: 25}}
	v := QuadVertices(q, types.Size{W: 100, H: 50})

	// top left corner sits in the middle of the top edge
	assert.InDelta(t, 0, v[8], 1e-6)
	assert.InDelta(t, 1, v[9], 1e-6)
	// bottom edge is halfway down
	assert.InDelta(t, 0, v[1], 1e-6)
}

func TestQuadVertices_YInverted(t *testing.T) {
	v := QuadVertices(Quad{Size: types.Size{W: 1, H: 1}, YInverted: true}, types.Size{W: 1, H: 1})

	assert.Equal(t, float32(0), v[3])  // bottom samples row 0
	assert.Equal(t, float32(1), v[11]) // top samples the last row
}

func TestFormatSupported(t *testing.T) {
	tests := []struct {
		format Format
		want   bool
	}{
		{FormatRGB, true},
		{FormatRGBA, true},
		{FormatExternal, false},
		{FormatYUV, false},
		{FormatYUV3, false},
		{FormatYXUXV, false},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.format.Supported())
		})
	}
}
