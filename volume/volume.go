// Package volume ties a chunk store, a mesh builder and a rebuild scheduler
// into one voxel volume.
package volume

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/voxelsplace/boxfish/importer"
	"github.com/voxelsplace/boxfish/mesh"
	"github.com/voxelsplace/boxfish/rebuild"
	"github.com/voxelsplace/boxfish/snapshot"
	"github.com/voxelsplace/boxfish/voxel"
)

// ErrClosed is returned by operations on a closed volume.
var ErrClosed = errors.New("volume: closed")

type Options struct {
	// Scale is the world size of one voxel edge. Zero means 1.
	Scale      float32
	Collisions bool
	// Workers bounds concurrent mesh builds. Zero means GOMAXPROCS.
	Workers     int
	Compression snapshot.Compression
	Logger      *slog.Logger
}

// Volume owns the chunks of one voxel world and keeps the sink's meshes in
// step with them. Mutations are not meshed until GenerateMeshes is called.
//
// Voxel writes must come from a single goroutine.
type Volume[T, V any] struct {
	opts   Options
	log    *slog.Logger
	store  *voxel.Store[T]
	sched  *rebuild.Scheduler[T, V]
	closed atomic.Bool
}

func New[T, V any](policy mesh.Policy[T, V], sink rebuild.Sink[V], opts Options) (*Volume[T, V], error) {
	if opts.Scale < 0 {
		return nil, fmt.Errorf("volume: scale must be positive, got %v", opts.Scale)
	}
	if opts.Scale == 0 {
		opts.Scale = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	builder, err := mesh.NewBuilder(policy)
	if err != nil {
		return nil, err
	}
	store := voxel.NewStore(policy.IsValid, opts.Logger)
	sched := rebuild.New(store, builder, sink, rebuild.Options{
		Workers:    opts.Workers,
		Scale:      opts.Scale,
		Collisions: opts.Collisions,
		Logger:     opts.Logger,
	})
	return &Volume[T, V]{opts: opts, log: opts.Logger, store: store, sched: sched}, nil
}

func (v *Volume[T, V]) Store() *voxel.Store[T] { return v.store }

func (v *Volume[T, V]) Scale() float32 { return v.opts.Scale }

// Chunk returns the chunk at key, creating it when missing.
func (v *Volume[T, V]) Chunk(key voxel.ChunkKey) *voxel.Chunk[T] {
	return v.store.GetOrCreate(key)
}

// Set writes a voxel at a global position. Writes outside existing chunks
// are dropped. The chunk is not re-meshed until GenerateMeshes.
func (v *Volume[T, V]) Set(pos voxel.Vec3i, val T) bool {
	return v.store.Set(pos, val, nil)
}

func (v *Volume[T, V]) Get(pos voxel.Vec3i) (T, bool) {
	return v.store.Voxel(pos, nil)
}

// GenerateMeshes schedules rebuilds for keys, or for every chunk when no key
// is given. It does not wait for them.
func (v *Volume[T, V]) GenerateMeshes(keys ...voxel.ChunkKey) {
	if v.closed.Load() {
		return
	}
	if len(keys) == 0 {
		keys = v.store.Keys()
	}
	v.sched.MarkDirty(keys...)
}

// Wait blocks until scheduled rebuilds finish and returns their failures.
func (v *Volume[T, V]) Wait(ctx context.Context) error {
	return v.sched.Wait(ctx)
}

func (v *Volume[T, V]) Stats() rebuild.Stats { return v.sched.Stats() }

// Import builds imp and merges its chunks into the volume, then schedules
// the imported chunks and their face neighbors.
func (v *Volume[T, V]) Import(ctx context.Context, imp *importer.Importer[T]) error {
	chunks, err := imp.Build(ctx)
	if err != nil {
		return err
	}
	return v.ImportChunks(ctx, chunks)
}

// ImportChunks merges detached chunks into the volume.
func (v *Volume[T, V]) ImportChunks(ctx context.Context, chunks map[voxel.ChunkKey]*voxel.Chunk[T]) error {
	if v.closed.Load() {
		return ErrClosed
	}
	keys, err := v.store.Populate(ctx, chunks)
	if err != nil {
		return err
	}
	v.log.Info("chunks imported", "count", len(keys))
	v.GenerateMeshes(v.withFaceNeighbors(keys)...)
	return nil
}

// Serialize encodes every chunk of the volume.
func (v *Volume[T, V]) Serialize() ([]byte, error) {
	return snapshot.Encode(v.store, snapshot.Options{Compression: v.opts.Compression})
}

// Deserialize replaces the volume content with a snapshot. Invalid input
// leaves the volume untouched. Every new chunk is re-meshed and chunks that
// disappeared are removed from the sink.
func (v *Volume[T, V]) Deserialize(data []byte) error {
	if v.closed.Load() {
		return ErrClosed
	}
	chunks, err := snapshot.Decode[T](data)
	if err != nil {
		return err
	}
	gone := v.store.Replace(chunks)
	v.log.Info("snapshot applied", "chunks", len(chunks), "removed", len(gone))
	v.GenerateMeshes(append(v.store.Keys(), gone...)...)
	return nil
}

func (v *Volume[T, V]) WriteSnapshot(w io.Writer) error {
	data, err := v.Serialize()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (v *Volume[T, V]) ReadSnapshot(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return v.Deserialize(data)
}

// DeltaFrom encodes the writes that turn before into the current content.
func (v *Volume[T, V]) DeltaFrom(before *voxel.Store[T]) ([]byte, error) {
	changes, err := snapshot.Diff(before, v.store)
	if err != nil {
		return nil, err
	}
	return snapshot.EncodeDelta(changes, snapshot.Options{Compression: v.opts.Compression})
}

// ApplyDelta decodes a delta and applies all of its writes, creating chunks
// as needed. Nothing is written if the delta is invalid. Touched chunks and
// the neighbors sharing a touched boundary are scheduled.
func (v *Volume[T, V]) ApplyDelta(data []byte) error {
	if v.closed.Load() {
		return ErrClosed
	}
	changes, err := snapshot.DecodeDelta[T](data)
	if err != nil {
		return err
	}
	dirty := make(map[voxel.ChunkKey]struct{})
	var touched []*voxel.Chunk[T]
	for _, ch := range changes {
		c := v.store.GetOrCreate(ch.Key)
		c.Set(ch.Local.X, ch.Local.Y, ch.Local.Z, ch.Voxel)
		if _, ok := dirty[ch.Key]; !ok {
			touched = append(touched, c)
		}
		dirty[ch.Key] = struct{}{}
		for n := range c.Neighbors(ch.Local.X, ch.Local.Y, ch.Local.Z, false) {
			dirty[n.Key()] = struct{}{}
		}
	}
	for _, c := range touched {
		c.RecheckEmpty()
	}
	keys := make([]voxel.ChunkKey, 0, len(dirty))
	for k := range dirty {
		keys = append(keys, k)
	}
	v.log.Debug("delta applied", "changes", len(changes), "chunks", len(touched))
	v.GenerateMeshes(keys...)
	return nil
}

// Close stops scheduling, abandons in-flight rebuilds, removes every mesh
// from the sink and drops all chunks.
func (v *Volume[T, V]) Close(ctx context.Context) error {
	if v.closed.Swap(true) {
		return nil
	}
	v.sched.Close()
	err := v.sched.RemoveAll(ctx)
	v.store.Clear()
	return err
}

func (v *Volume[T, V]) withFaceNeighbors(keys []voxel.ChunkKey) []voxel.ChunkKey {
	seen := make(map[voxel.ChunkKey]bool, len(keys))
	out := make([]voxel.ChunkKey, 0, len(keys))
	add := func(k voxel.ChunkKey) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for _, k := range keys {
		add(k)
	}
	for _, k := range keys {
		for _, d := range [6][3]int{{1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}, {0, 0, -1}} {
			n := k.Add(d[0], d[1], d[2])
			if _, ok := v.store.Get(n); ok {
				add(n)
			}
		}
	}
	return out
}
