package mesh

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/voxelsplace/boxfish/voxel"
)

type testVertex struct {
	Pos   voxel.Vec3i
	Index int
	Face  Face
	AO    int
	Value uint8
}

// voxels 0 = empty, 1 = opaque, 2 = see-through
func testPolicy(withOpacity bool) Policy[uint8, testVertex] {
	p := Policy[uint8, testVertex]{
		IsValid: func(v uint8) bool { return v != 0 },
		CreateVertex: func(pos voxel.Vec3i, i int, f Face, ao int, v uint8) testVertex {
			return testVertex{pos, i, f, ao, v}
		},
	}
	if withOpacity {
		p.IsOpaque = func(v uint8) bool { return v == 1 }
	}
	return p
}

func newTestBuilder(t *testing.T, withOpacity bool) *Builder[uint8, testVertex] {
	t.Helper()
	b, err := NewBuilder(testPolicy(withOpacity))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func newTestStore() *voxel.Store[uint8] {
	return voxel.NewStore[uint8](func(v uint8) bool { return v != 0 }, nil)
}

func facesOf(m Mesh[testVertex]) []Face {
	var out []Face
	for i := 0; i < len(m.Vertices); i += 4 {
		out = append(out, m.Vertices[i].Face)
	}
	return out
}

func TestSingleVoxel(t *testing.T) {
	s := newTestStore()
	c := s.GetOrCreate(voxel.ChunkKey{})
	c.Set(4, 5, 6, 1)

	m, err := newTestBuilder(t, false).Build(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if m.Faces != 6 || len(m.Vertices) != 24 {
		t.Fatalf("got %d faces / %d vertices, want 6 / 24", m.Faces, len(m.Vertices))
	}
	for i, v := range m.Vertices {
		if v.AO != 3 {
			t.Errorf("vertex %d has ao %d, want 3", i, v.AO)
		}
		if v.Index != i%4 {
			t.Errorf("vertex %d has index %d", i, v.Index)
		}
	}
	want := []Face{FacePosX, FaceNegX, FacePosY, FaceNegY, FacePosZ, FaceNegZ}
	if got := facesOf(m); !slices.Equal(got, want) {
		t.Fatalf("faces = %v, want %v", got, want)
	}
	if m.Min.X() != 4 || m.Max.Z() != 7 {
		t.Fatalf("bounds = %v %v", m.Min, m.Max)
	}
}

func TestSharedFaceSuppressed(t *testing.T) {
	s := newTestStore()
	c := s.GetOrCreate(voxel.ChunkKey{})
	c.Set(4, 4, 4, 1)
	c.Set(5, 4, 4, 1)

	m, err := newTestBuilder(t, false).Build(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if m.Faces != 10 {
		t.Fatalf("got %d faces, want 10", m.Faces)
	}
}

func TestBoundaryFaceAgainstNeighborChunk(t *testing.T) {
	s := newTestStore()
	a := s.GetOrCreate(voxel.ChunkKey{})
	b := s.GetOrCreate(voxel.ChunkKey{X: 1})
	a.Set(15, 3, 3, 1)
	builder := newTestBuilder(t, false)

	m, _ := builder.Build(context.Background(), a)
	if m.Faces != 6 {
		t.Fatalf("empty neighbor voxel: got %d faces, want 6", m.Faces)
	}

	b.Set(0, 3, 3, 1)
	m, _ = builder.Build(context.Background(), a)
	if m.Faces != 5 {
		t.Fatalf("filled neighbor voxel: got %d faces, want 5", m.Faces)
	}
	if slices.Contains(facesOf(m), FacePosX) {
		t.Fatal("+x face against the neighbor chunk was emitted")
	}

	m, _ = builder.Build(context.Background(), b)
	if m.Faces != 5 || slices.Contains(facesOf(m), FaceNegX) {
		t.Fatalf("neighbor chunk: got faces %v", facesOf(m))
	}
}

func TestOpacity(t *testing.T) {
	s := newTestStore()
	c := s.GetOrCreate(voxel.ChunkKey{})
	c.Set(4, 4, 4, 1)
	c.Set(5, 4, 4, 2)

	m, err := newTestBuilder(t, true).Build(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	// the opaque voxel shows its face towards the see-through one, not the reverse
	if m.Faces != 11 {
		t.Fatalf("got %d faces, want 11", m.Faces)
	}
	for i := 0; i < len(m.Vertices); i += 4 {
		v := m.Vertices[i]
		if v.Value == 2 && v.Face == FaceNegX {
			t.Fatal("see-through voxel emitted a face towards the opaque one")
		}
	}
}

func TestAmbientOcclusion(t *testing.T) {
	s := newTestStore()
	c := s.GetOrCreate(voxel.ChunkKey{})
	c.Set(5, 5, 5, 1)
	c.Set(6, 6, 5, 1)

	m, err := newTestBuilder(t, false).Build(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	var got []int
	for _, v := range m.Vertices {
		if v.Pos == (voxel.Vec3i{X: 5, Y: 5, Z: 5}) && v.Face == FacePosX {
			got = append(got, v.AO)
		}
	}
	// vertices 1 and 2 sit on the +y side of the +x face
	if want := []int{3, 2, 2, 3}; !slices.Equal(got, want) {
		t.Fatalf("ao = %v, want %v", got, want)
	}
}

func TestAmbientOcclusionAcrossChunks(t *testing.T) {
	s := newTestStore()
	a := s.GetOrCreate(voxel.ChunkKey{})
	b := s.GetOrCreate(voxel.ChunkKey{X: 1})
	a.Set(15, 5, 5, 1)
	b.Set(0, 6, 5, 1)

	m, err := newTestBuilder(t, false).Build(context.Background(), a)
	if err != nil {
		t.Fatal(err)
	}
	var got []int
	for _, v := range m.Vertices {
		if v.Face == FacePosY {
			got = append(got, v.AO)
		}
	}
	// vertices 2 and 3 sit on the +x edge, under b's voxel
	if want := []int{3, 3, 2, 2}; !slices.Equal(got, want) {
		t.Fatalf("ao = %v, want %v", got, want)
	}
}

func TestDeterministic(t *testing.T) {
	s := newTestStore()
	c := s.GetOrCreate(voxel.ChunkKey{})
	s.GetOrCreate(voxel.ChunkKey{Y: -1}).Fill(1)
	for i := 0; i < 40; i++ {
		c.Set(i%16, (i*7)%16, (i*3)%16, uint8(1+i%2))
	}
	b := newTestBuilder(t, true)
	m1, err := b.Build(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	m2, _ := b.Build(context.Background(), c)
	if !slices.Equal(m1.Vertices, m2.Vertices) || m1.Faces != m2.Faces {
		t.Fatal("two builds of the same chunk differ")
	}
}

func TestEmptyChunk(t *testing.T) {
	s := newTestStore()
	c := s.GetOrCreate(voxel.ChunkKey{X: 3})
	m, err := newTestBuilder(t, false).Build(context.Background(), c)
	if err != nil || !m.Empty() || m.Key != c.Key() {
		t.Fatalf("empty chunk: %+v %v", m, err)
	}
}

func TestBuildCancelled(t *testing.T) {
	s := newTestStore()
	c := s.GetOrCreate(voxel.ChunkKey{})
	c.Set(0, 0, 0, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestBuilder(t, false).Build(ctx, c); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestPolicyPanicRecovered(t *testing.T) {
	p := testPolicy(false)
	p.CreateVertex = func(voxel.Vec3i, int, Face, int, uint8) testVertex { panic("boom") }
	b, err := NewBuilder(p)
	if err != nil {
		t.Fatal(err)
	}
	s := newTestStore()
	c := s.GetOrCreate(voxel.ChunkKey{})
	c.Set(0, 0, 0, 1)
	m, err := b.Build(context.Background(), c)
	if err == nil || !m.Empty() {
		t.Fatalf("panic not turned into an error: %+v %v", m, err)
	}
}

func TestIncompletePolicy(t *testing.T) {
	if _, err := NewBuilder(Policy[uint8, testVertex]{}); !errors.Is(err, ErrIncompletePolicy) {
		t.Fatalf("err = %v", err)
	}
}
