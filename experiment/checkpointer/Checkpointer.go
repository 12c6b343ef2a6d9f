// Package checkpointer implements Checkpointers, which persist model
// parameters at intervals of the global step count
package checkpointer

// Saver is an object whose parameters can be persisted to a directory,
// tagged with the global step at which they were saved
type Saver interface {
	Save(dir string, step int64) (string, error)
}

// Checkpointer persists an object when given a global step count.
// Checkpoint must be safe for concurrent use, since any worker may
// trigger a save.
type Checkpointer interface {
	Checkpoint(step int64) error
}

// ShouldCheckpoint reports whether a worker that just observed the
// given global step should trigger a checkpoint. Workers call this
// immediately after their own step increment; with concurrent
// increments a multiple of interval may be observed by several workers
// or by none, so saves are at-least-once in practice, and duplicate
// triggers are tolerated.
func ShouldCheckpoint(step, interval int64) bool {
	return interval > 0 && step%interval == 0
}
