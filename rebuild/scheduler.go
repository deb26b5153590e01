package rebuild

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/voxelsplace/boxfish/mesh"
	"github.com/voxelsplace/boxfish/voxel"
	"golang.org/x/sync/semaphore"
)

type Options struct {
	// Workers bounds concurrent mesh builds. Zero means GOMAXPROCS.
	Workers int
	// Scale is the world size of one voxel edge.
	Scale      float32
	Collisions bool
	Logger     *slog.Logger
}

// Stats is a snapshot of the scheduler counters.
type Stats struct {
	Scheduled int64
	Completed int64
	Coalesced int64
	Failed    int64
	Discarded int64
}

type job struct {
	started bool
	again   bool
}

// Scheduler rebuilds dirty chunks on background goroutines. Each key has
// at most one rebuild in flight; marks that arrive while it runs fold into
// a single follow-up rebuild.
type Scheduler[T, V any] struct {
	store   *voxel.Store[T]
	builder *mesh.Builder[T, V]
	sink    Sink[V]
	opts    Options
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	sem    *semaphore.Weighted
	wg     sync.WaitGroup

	mu     sync.Mutex
	jobs   map[voxel.ChunkKey]*job
	idle   chan struct{}
	errs   []error
	closed bool

	sinkMu    sync.Mutex
	delivered map[voxel.ChunkKey]struct{}

	scheduled, completed, coalesced, failed, discarded atomic.Int64
}

func New[T, V any](store *voxel.Store[T], builder *mesh.Builder[T, V], sink Sink[V], opts Options) *Scheduler[T, V] {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Scale <= 0 {
		opts.Scale = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if sink == nil {
		sink = Discard[V]{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	return &Scheduler[T, V]{
		store:     store,
		builder:   builder,
		sink:      sink,
		opts:      opts,
		log:       opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
		sem:       semaphore.NewWeighted(int64(opts.Workers)),
		jobs:      make(map[voxel.ChunkKey]*job),
		idle:      idle,
		delivered: make(map[voxel.ChunkKey]struct{}),
	}
}

// MarkDirty queues rebuilds for keys and returns immediately. Marks after
// Close are ignored.
func (s *Scheduler[T, V]) MarkDirty(keys ...voxel.ChunkKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, key := range keys {
		if j, ok := s.jobs[key]; ok {
			if j.started {
				j.again = true
			}
			s.coalesced.Add(1)
			continue
		}
		if len(s.jobs) == 0 {
			s.idle = make(chan struct{})
		}
		s.jobs[key] = &job{}
		s.scheduled.Add(1)
		s.wg.Add(1)
		go s.run(key)
	}
}

func (s *Scheduler[T, V]) run(key voxel.ChunkKey) {
	defer s.wg.Done()
	for {
		if err := s.sem.Acquire(s.ctx, 1); err != nil {
			s.discarded.Add(1)
			s.finish(key)
			return
		}
		s.mu.Lock()
		j := s.jobs[key]
		j.started = true
		s.mu.Unlock()

		s.rebuild(key)
		s.sem.Release(1)

		// The again check and the job removal share one critical section so
		// a mark cannot land on a job that is about to disappear.
		s.mu.Lock()
		if j.again && !s.closed {
			j.again, j.started = false, false
			s.mu.Unlock()
			continue
		}
		s.dropLocked(key)
		s.mu.Unlock()
		return
	}
}

func (s *Scheduler[T, V]) finish(key voxel.ChunkKey) {
	s.mu.Lock()
	s.dropLocked(key)
	s.mu.Unlock()
}

func (s *Scheduler[T, V]) dropLocked(key voxel.ChunkKey) {
	delete(s.jobs, key)
	if len(s.jobs) == 0 {
		close(s.idle)
	}
}

func (s *Scheduler[T, V]) rebuild(key voxel.ChunkKey) {
	c, ok := s.store.Get(key)
	var m mesh.Mesh[V]
	if ok {
		var err error
		m, err = s.builder.Build(s.ctx, c)
		if err != nil {
			if s.ctx.Err() != nil {
				s.discarded.Add(1)
				return
			}
			s.fail(key, err)
			return
		}
	}

	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	if s.ctx.Err() != nil {
		s.discarded.Add(1)
		return
	}
	if !ok || m.Empty() {
		delete(s.delivered, key)
		if err := s.sink.Remove(s.ctx, key); err != nil {
			s.fail(key, err)
			return
		}
		s.completed.Add(1)
		s.log.Debug("chunk mesh removed", "chunk", key)
		return
	}
	if err := s.sink.Rebuild(s.ctx, s.request(key, m)); err != nil {
		if s.ctx.Err() != nil {
			s.discarded.Add(1)
			return
		}
		s.fail(key, err)
		return
	}
	s.delivered[key] = struct{}{}
	s.completed.Add(1)
	s.log.Debug("chunk rebuilt", "chunk", key, "faces", m.Faces)
}

func (s *Scheduler[T, V]) request(key voxel.ChunkKey, m mesh.Mesh[V]) Request[V] {
	pos := WorldPosition(key, s.opts.Scale)
	return Request[V]{
		Key:        key,
		Vertices:   m.Vertices,
		Faces:      m.Faces,
		Position:   pos,
		Min:        pos.Add(m.Min.Mul(s.opts.Scale)),
		Max:        pos.Add(m.Max.Mul(s.opts.Scale)),
		Collisions: s.opts.Collisions,
	}
}

func (s *Scheduler[T, V]) fail(key voxel.ChunkKey, err error) {
	s.failed.Add(1)
	s.log.Warn("chunk rebuild failed", "chunk", key, "error", err)
	s.mu.Lock()
	s.errs = append(s.errs, &Error{Key: key, Err: err})
	s.mu.Unlock()
}

// Wait blocks until no rebuild is queued or running, then returns the
// failures collected since the previous Wait, joined.
func (s *Scheduler[T, V]) Wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()
	select {
	case <-idle:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	errs := s.errs
	s.errs = nil
	s.mu.Unlock()
	return errors.Join(errs...)
}

// Close stops accepting marks, cancels running builds and waits for the
// workers. Results that were still in flight are discarded.
func (s *Scheduler[T, V]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

// RemoveAll asks the sink to drop every chunk mesh it has been handed.
func (s *Scheduler[T, V]) RemoveAll(ctx context.Context) error {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	keys := make([]voxel.ChunkKey, 0, len(s.delivered))
	for k := range s.delivered {
		keys = append(keys, k)
	}
	var errs []error
	for _, k := range keys {
		if err := s.sink.Remove(ctx, k); err != nil {
			errs = append(errs, &Error{Key: k, Err: err})
			continue
		}
		delete(s.delivered, k)
	}
	return errors.Join(errs...)
}

func (s *Scheduler[T, V]) Stats() Stats {
	return Stats{
		Scheduled: s.scheduled.Load(),
		Completed: s.completed.Load(),
		Coalesced: s.coalesced.Load(),
		Failed:    s.failed.Load(),
		Discarded: s.discarded.Load(),
	}
}

// WorldPosition returns the world-space origin of the chunk at key.
func WorldPosition(key voxel.ChunkKey, scale float32) mgl32.Vec3 {
	o := key.Origin()
	return mgl32.Vec3{float32(o.X), float32(o.Y), float32(o.Z)}.Mul(scale)
}
