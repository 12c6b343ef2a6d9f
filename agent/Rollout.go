package agent

// RolloutSegment accumulates the states, actions, and clipped rewards
// one worker collects between two gradient updates. The three
// sequences are parallel and always equal in length. A segment is
// owned by exactly one worker and reused across updates.
type RolloutSegment struct {
	states  [][]float64
	actions []int
	rewards []float64
}

// NewRolloutSegment returns an empty segment with capacity for a
// worker's update cadence
func NewRolloutSegment(cadence int) *RolloutSegment {
	return &RolloutSegment{
		states:  make([][]float64, 0, cadence),
		actions: make([]int, 0, cadence),
		rewards: make([]float64, 0, cadence),
	}
}

// Add appends one transition to the segment
func (r *RolloutSegment) Add(state []float64, action int, reward float64) {
	r.states = append(r.states, state)
	r.actions = append(r.actions, action)
	r.rewards = append(r.rewards, reward)
}

// Len returns the number of transitions in the segment
func (r *RolloutSegment) Len() int {
	return len(r.states)
}

// Reset empties the segment for the next collection phase
func (r *RolloutSegment) Reset() {
	r.states = r.states[:0]
	r.actions = r.actions[:0]
	r.rewards = r.rewards[:0]
}

// States returns the segment's state sequence
func (r *RolloutSegment) States() [][]float64 {
	return r.states
}

// Actions returns the segment's action sequence
func (r *RolloutSegment) Actions() []int {
	return r.actions
}

// Rewards returns the segment's clipped reward sequence
func (r *RolloutSegment) Rewards() []float64 {
	return r.rewards
}

// Returns computes the discounted return of each transition by the
// backward recurrence R_i = r_i + discount * R_{i+1}, seeded with the
// bootstrap value. The bootstrap is 0 when the segment ended the
// episode and the predicted value of the final state otherwise.
func (r *RolloutSegment) Returns(bootstrap, discount float64) []float64 {
	returns := make([]float64, len(r.rewards))
	future := bootstrap
	for i := len(r.rewards) - 1; i >= 0; i-- {
		future = r.rewards[i] + discount*future
		returns[i] = future
	}
	return returns
}
