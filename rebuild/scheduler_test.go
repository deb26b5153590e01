package rebuild

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voxelsplace/boxfish/mesh"
	"github.com/voxelsplace/boxfish/voxel"
)

type vert struct {
	Pos  voxel.Vec3i
	Face mesh.Face
}

func newBuilder(t *testing.T) *mesh.Builder[uint8, vert] {
	t.Helper()
	b, err := mesh.NewBuilder(mesh.Policy[uint8, vert]{
		IsValid: func(v uint8) bool { return v != 0 },
		CreateVertex: func(pos voxel.Vec3i, _ int, f mesh.Face, _ int, v uint8) vert {
			if v == 9 {
				panic("bad voxel")
			}
			return vert{pos, f}
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// recordingSink counts calls per key. When gate is set, the first Rebuild
// signals entered and blocks until gate is closed.
type recordingSink struct {
	mu       sync.Mutex
	rebuilds map[voxel.ChunkKey]int
	removes  map[voxel.ChunkKey]int
	last     map[voxel.ChunkKey]Request[vert]

	gate    chan struct{}
	entered chan struct{}
	once    sync.Once

	// after runs inside Rebuild once the request is recorded.
	after func(Request[vert])
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		rebuilds: make(map[voxel.ChunkKey]int),
		removes:  make(map[voxel.ChunkKey]int),
		last:     make(map[voxel.ChunkKey]Request[vert]),
	}
}

func (r *recordingSink) Rebuild(ctx context.Context, req Request[vert]) error {
	if r.gate != nil {
		first := false
		r.once.Do(func() { first = true })
		if first {
			close(r.entered)
			select {
			case <-r.gate:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	r.mu.Lock()
	r.rebuilds[req.Key]++
	r.last[req.Key] = req
	r.mu.Unlock()
	if r.after != nil {
		r.after(req)
	}
	return nil
}

func (r *recordingSink) Remove(_ context.Context, key voxel.ChunkKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removes[key]++
	return nil
}

func newStore() *voxel.Store[uint8] {
	return voxel.NewStore[uint8](func(v uint8) bool { return v != 0 }, nil)
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRebuildDelivered(t *testing.T) {
	store := newStore()
	store.GetOrCreate(voxel.ChunkKey{X: 1, Y: 0, Z: -1}).Set(0, 0, 0, 1)
	sink := newRecordingSink()
	s := New(store, newBuilder(t), sink, Options{Scale: 0.5, Collisions: true})
	defer s.Close()

	s.MarkDirty(voxel.ChunkKey{X: 1, Y: 0, Z: -1})
	if err := s.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	req := sink.last[voxel.ChunkKey{X: 1, Y: 0, Z: -1}]
	if req.Faces != 6 || len(req.Vertices) != 24 {
		t.Fatalf("request has %d faces / %d vertices", req.Faces, len(req.Vertices))
	}
	if req.Position.X() != 8 || req.Position.Z() != -8 || !req.Collisions {
		t.Fatalf("request position %v collisions %v", req.Position, req.Collisions)
	}
	if req.Max.X() != 8.5 {
		t.Fatalf("request bounds %v %v", req.Min, req.Max)
	}
}

func TestMissingOrEmptyChunkRemoved(t *testing.T) {
	store := newStore()
	store.GetOrCreate(voxel.ChunkKey{})
	sink := newRecordingSink()
	s := New(store, newBuilder(t), sink, Options{})
	defer s.Close()

	s.MarkDirty(voxel.ChunkKey{}, voxel.ChunkKey{X: 5})
	if err := s.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	if sink.removes[voxel.ChunkKey{}] != 1 || sink.removes[voxel.ChunkKey{X: 5}] != 1 {
		t.Fatalf("removes = %v", sink.removes)
	}
	if len(sink.rebuilds) != 0 {
		t.Fatalf("rebuilds = %v", sink.rebuilds)
	}
}

func TestCoalescing(t *testing.T) {
	store := newStore()
	key := voxel.ChunkKey{}
	store.GetOrCreate(key).Set(1, 1, 1, 1)
	sink := newRecordingSink()
	sink.gate = make(chan struct{})
	sink.entered = make(chan struct{})
	s := New(store, newBuilder(t), sink, Options{Workers: 4})
	defer s.Close()

	s.MarkDirty(key)
	<-sink.entered
	for i := 0; i < 5; i++ {
		s.MarkDirty(key)
	}
	close(sink.gate)
	if err := s.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	if got := sink.rebuilds[key]; got != 2 {
		t.Fatalf("rebuilds = %d, want 2", got)
	}
	st := s.Stats()
	if st.Scheduled != 1 || st.Coalesced != 5 || st.Completed != 2 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestMarkRacingCompletion(t *testing.T) {
	const writes = 300
	store := newStore()
	key := voxel.ChunkKey{}
	c := store.GetOrCreate(key)
	c.Set(0, 0, 0, 1)
	sink := newRecordingSink()
	s := New(store, newBuilder(t), sink, Options{Workers: 2})
	defer s.Close()

	var markers sync.WaitGroup
	done := make(chan struct{})
	n := 1
	// Each delivery writes the next voxel and marks the chunk from another
	// goroutine, so the mark races the end of the current rebuild.
	sink.after = func(Request[vert]) {
		if n == writes {
			return
		}
		p := voxel.LocalFromIndex(n)
		c.Set(p.X, p.Y, p.Z, 1)
		n++
		markers.Add(1)
		go func() {
			defer markers.Done()
			s.MarkDirty(key)
		}()
		if n == writes {
			close(done)
		}
	}

	s.MarkDirty(key)
	select {
	case <-done:
	case <-waitCtx(t).Done():
		t.Fatalf("only %d writes were meshed", n)
	}
	markers.Wait()
	if err := s.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}

	lastPos := voxel.LocalFromIndex(writes - 1)
	sink.mu.Lock()
	req := sink.last[key]
	sink.mu.Unlock()
	for _, v := range req.Vertices {
		if v.Pos == lastPos {
			return
		}
	}
	t.Fatalf("final mesh misses the last write at %v", lastPos)
}

func TestFailureIsolated(t *testing.T) {
	store := newStore()
	bad, good := voxel.ChunkKey{}, voxel.ChunkKey{X: 4}
	store.GetOrCreate(bad).Set(3, 3, 3, 9)
	store.GetOrCreate(good).Set(3, 3, 3, 1)
	sink := newRecordingSink()
	s := New(store, newBuilder(t), sink, Options{})
	defer s.Close()

	s.MarkDirty(bad, good)
	err := s.Wait(waitCtx(t))
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Key != bad {
		t.Fatalf("err = %v", err)
	}
	if sink.rebuilds[good] != 1 {
		t.Fatal("healthy chunk was not rebuilt")
	}
	if err := s.Wait(waitCtx(t)); err != nil {
		t.Fatalf("errors reported twice: %v", err)
	}
}

func TestCloseDiscards(t *testing.T) {
	store := newStore()
	key := voxel.ChunkKey{}
	store.GetOrCreate(key).Set(1, 1, 1, 1)
	sink := newRecordingSink()
	sink.gate = make(chan struct{})
	sink.entered = make(chan struct{})
	s := New(store, newBuilder(t), sink, Options{})

	s.MarkDirty(key)
	<-sink.entered
	s.Close()
	if sink.rebuilds[key] != 0 {
		t.Fatal("result of a cancelled rebuild was recorded")
	}
	s.MarkDirty(key)
	if err := s.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	if sink.rebuilds[key] != 0 {
		t.Fatal("mark after Close was processed")
	}
}

func TestRemoveAll(t *testing.T) {
	store := newStore()
	a, b := voxel.ChunkKey{}, voxel.ChunkKey{Y: 2}
	store.GetOrCreate(a).Set(0, 0, 0, 1)
	store.GetOrCreate(b).Set(0, 0, 0, 1)
	sink := newRecordingSink()
	s := New(store, newBuilder(t), sink, Options{})
	s.MarkDirty(a, b)
	if err := s.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	s.Close()
	if err := s.RemoveAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if sink.removes[a] != 1 || sink.removes[b] != 1 {
		t.Fatalf("removes = %v", sink.removes)
	}
}
