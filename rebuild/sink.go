package rebuild

import (
	"context"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/voxelsplace/boxfish/voxel"
)

// Request carries a finished chunk mesh to the render/physics side.
type Request[V any] struct {
	Key      voxel.ChunkKey
	Vertices []V
	Faces    int
	// Position is the world-space origin of the chunk.
	Position mgl32.Vec3
	// Min and Max bound the emitted geometry in world space.
	Min, Max   mgl32.Vec3
	Collisions bool
}

// Sink receives rebuild results. Calls are serialized by the scheduler, so
// implementations need not be safe for concurrent use.
type Sink[V any] interface {
	Rebuild(ctx context.Context, req Request[V]) error
	Remove(ctx context.Context, key voxel.ChunkKey) error
}

// Discard is a Sink that drops everything.
type Discard[V any] struct{}

func (Discard[V]) Rebuild(context.Context, Request[V]) error    { return nil }
func (Discard[V]) Remove(context.Context, voxel.ChunkKey) error { return nil }

// Error reports a failed rebuild of one chunk.
type Error struct {
	Key voxel.ChunkKey
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("rebuild chunk %v: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
