package mesh

// Face identifies one of the six sides of a voxel.
type Face uint8

const (
	FacePosX Face = iota
	FaceNegX
	FacePosY
	FaceNegY
	FacePosZ
	FaceNegZ
)

// FaceCount is the number of faces of a voxel.
const FaceCount = 6

var faceNames = [FaceCount]string{"+x", "-x", "+y", "-y", "+z", "-z"}

func (f Face) String() string {
	if int(f) < FaceCount {
		return faceNames[f]
	}
	return "invalid"
}

type faceSpec struct {
	normal [3]int
	u, v   int // in-plane axes
}

var faces = [FaceCount]faceSpec{
	{[3]int{1, 0, 0}, 1, 2},
	{[3]int{-1, 0, 0}, 1, 2},
	{[3]int{0, 1, 0}, 0, 2},
	{[3]int{0, -1, 0}, 0, 2},
	{[3]int{0, 0, 1}, 0, 1},
	{[3]int{0, 0, -1}, 0, 1},
}

// corners holds, per face, the (u, v) step of each of the four vertices.
// Vertices go counter-clockwise seen from outside the voxel.
var corners [FaceCount][4][2]int

func init() {
	for f, spec := range faces {
		perp := 3 - spec.u - spec.v
		quad := [4][2]int{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
		if (spec.normal[perp] < 0) != (perp == 1) {
			quad[1], quad[3] = quad[3], quad[1]
		}
		corners[f] = quad
	}
}

// Normal returns the unit outward normal of the face.
func (f Face) Normal() [3]int { return faces[f].normal }

func (f Face) axis() int { return 3 - faces[f].u - faces[f].v }

// CornerOffset returns the offset of vertex i (0-3) of face f from the
// voxel's minimum corner. Each component is 0 or 1.
func CornerOffset(f Face, i int) [3]int {
	spec := faces[f]
	var off [3]int
	if spec.normal[f.axis()] > 0 {
		off[f.axis()] = 1
	}
	off[spec.u] = corners[f][i][0]
	off[spec.v] = corners[f][i][1]
	return off
}

// QuadIndices returns the triangle list for a stream of quads, six indices
// per face: 0,1,2 and 0,2,3 relative to the quad's first vertex.
func QuadIndices(faceCount int) []uint32 {
	out := make([]uint32, 0, faceCount*6)
	for q := 0; q < faceCount; q++ {
		b := uint32(q * 4)
		out = append(out, b, b+1, b+2, b, b+2, b+3)
	}
	return out
}
