package gfx

// VertexSize is the size of Vertex in bytes.
const VertexSize = 64

// Render types stored in Vertex.Flags[0].
const (
	VertexSolid uint8 = iota
	VertexTextured
	VertexText
	VertexEdgeAA
	VertexStencilMask
)

// Vertex is the GPU vertex layout shared by every UIR mesh.
//
// The byte groups carry page and slot coordinates into the shader info
// tables so that per-element state (transform, clip, opacity, color, text
// settings) can change without rewriting vertices.
type Vertex struct {
	Position [3]float32
	Tint     [4]uint8
	UV       [2]float32

	// XformClipPages holds the table pages of the transform and clip rect
	// slots in bytes 0 and 1.
	XformClipPages [4]uint8
	// IDs holds the in-page slot index for transform, clip rect, opacity
	// and color.
	IDs [4]uint8
	// Flags[0] is the render type. Flags[1] is set on vertices that carry
	// an edge distance in Circle.
	Flags [4]uint8
	// OpacityColorPages holds the table pages of the opacity, color and
	// text settings slots.
	OpacityColorPages [4]uint8
	// SettingIndex[0] is the text settings slot index.
	SettingIndex [4]uint8

	// Circle carries analytic antialiasing data: x is the distance from
	// the shape edge, y the skirt width.
	Circle    [4]float32
	TextureID float32
}
