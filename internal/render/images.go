package render

// Format is the plane layout of a GPU client buffer.
type Format int

const (
	FormatRGB Format = iota
	FormatRGBA
	FormatExternal
	FormatYUV   // Y + UV, two planes
	FormatYUV3  // Y + U + V, three planes
	FormatYXUXV // Y + XUXV, two planes
)

func (f Format) String() string {
	switch f {
	case FormatRGB:
		return "rgb"
	case FormatRGBA:
		return "rgba"
	case FormatExternal:
		return "external"
	case FormatYUV:
		return "y_uv"
	case FormatYUV3:
		return "y_u_v"
	case FormatYXUXV:
		return "y_xuxv"
	default:
		return "unknown"
	}
}

// Supported reports whether buffers of this format can be turned into a plain 2D texture.
func (f Format) Supported() bool {
	return f == FormatRGB || f == FormatRGBA
}

// EGLImages is the set of EGLImage handles describing one GPU client buffer.
// Planes hold EGLImageKHR values; they are opaque to everything but the renderer.
type EGLImages struct {
	Format    Format
	Width     int
	Height    int
	YInverted bool
	Planes    []uintptr
}
