package frame

import (
	"fmt"
)

// Stack holds the K most recent preprocessed frames, oldest first. The
// flattened stack is the state representation fed to the function
// approximator. A Stack is owned by exactly one worker and is never
// shared.
type Stack struct {
	depth     int
	frameSize int
	frames    [][]float64
}

// NewStack returns an empty Stack holding depth frames of frameSize
// features each
func NewStack(depth, frameSize int) (*Stack, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("newStack: depth must be positive, got %v",
			depth)
	}
	if frameSize <= 0 {
		return nil, fmt.Errorf("newStack: frame size must be positive, "+
			"got %v", frameSize)
	}

	return &Stack{
		depth:     depth,
		frameSize: frameSize,
		frames:    make([][]float64, 0, depth),
	}, nil
}

// Fill replaces the stack contents with depth copies of a single
// frame. Called on episode start, when no history exists yet.
func (s *Stack) Fill(frame []float64) error {
	if len(frame) != s.frameSize {
		return fmt.Errorf("fill: illegal frame length \n\twant(%v)"+
			"\n\thave(%v)", s.frameSize, len(frame))
	}

	s.frames = s.frames[:0]
	for i := 0; i < s.depth; i++ {
		s.frames = append(s.frames, frame)
	}
	return nil
}

// Push drops the oldest frame and appends a new one
func (s *Stack) Push(frame []float64) error {
	if len(frame) != s.frameSize {
		return fmt.Errorf("push: illegal frame length \n\twant(%v)"+
			"\n\thave(%v)", s.frameSize, len(frame))
	}
	if len(s.frames) != s.depth {
		return fmt.Errorf("push: stack not filled, call Fill first")
	}

	copy(s.frames, s.frames[1:])
	s.frames[s.depth-1] = frame
	return nil
}

// Flat returns the stacked frames as a single feature vector, oldest
// frame first. The returned slice is freshly allocated, so callers may
// retain it across subsequent Push calls.
func (s *Stack) Flat() []float64 {
	flat := make([]float64, 0, s.depth*s.frameSize)
	for _, frame := range s.frames {
		flat = append(flat, frame...)
	}
	return flat
}

// Features returns the length of the vector returned by Flat
func (s *Stack) Features() int {
	return s.depth * s.frameSize
}
