package model

// Status describes the lifecycle state of a step execution or a run.
type Status string

const (
	// StatusPending indicates a step has not started yet.
	StatusPending Status = "pending"
	// StatusRunning indicates a step body is actively executing.
	StatusRunning Status = "running"
	// StatusAwaitingJoin marks a join step accumulating branch results.
	StatusAwaitingJoin Status = "awaiting_join"
	// StatusSucceeded marks a successful execution.
	StatusSucceeded Status = "succeeded"
	// StatusFailed marks a failure during execution.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status is a final one.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}
