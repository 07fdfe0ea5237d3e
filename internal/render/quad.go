package render

import "github.com/matjam/drmcomp/internal/types"

// QuadVertices returns two triangles covering q on a target of the given
// size, interleaved as [x, y, u, v] in GL clip space. Texture row 0 is the
// top of the image unless the quad is y-inverted.
func QuadVertices(q Quad, target types.Size) [24]float32 {
	w := float32(target.W)
	h := float32(target.H)

	x1 := 2*float32(q.Position.X)/w - 1
	x2 := 2*float32(q.Position.X+q.Size.W)/w - 1
	// clip space y grows upwards
	yTop := 1 - 2*float32(q.Position.Y)/h
	yBot := 1 - 2*float32(q.Position.Y+q.Size.H)/h

	var vTop, vBot float32 = 0, 1
	if q.YInverted {
		vTop, vBot = 1, 0
	}

	return [24]float32{
		x1, yBot, 0, vBot, // Bottom left
		x2, yBot, 1, vBot, // Bottom right
		x1, yTop, 0, vTop, // Top left
		x2, yBot, 1, vBot, // Bottom right
		x2, yTop, 1, vTop, // Top right
		x1, yTop, 0, vTop, // Top left
	}
}
