package checkpointer

import "fmt"

// interval checkpoints a Saver into a fixed directory
type interval struct {
	saver Saver
	dir   string
}

// NewInterval returns a Checkpointer that saves object into dir each
// time it is triggered
func NewInterval(object Saver, dir string) (Checkpointer, error) {
	if object == nil {
		return nil, fmt.Errorf("newInterval: no object to checkpoint")
	}
	if dir == "" {
		return nil, fmt.Errorf("newInterval: no checkpoint directory")
	}

	return &interval{saver: object, dir: dir}, nil
}

// Checkpoint saves the tracked object, tagged with the global step
func (i *interval) Checkpoint(step int64) error {
	if _, err := i.saver.Save(i.dir, step); err != nil {
		return fmt.Errorf("checkpoint: %v", err)
	}
	return nil
}
