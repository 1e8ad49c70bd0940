package types

import (
	"sync"
	"sync/atomic"
)

// OperationResult summarizes a batch of C-STORE sub-operations.
type OperationResult struct {
	Total              int
	Remaining          int
	Success            int
	Failure            int
	Warning            int
	FailureDescription string
}

// Done reports whether every sub-operation has an outcome.
func (r OperationResult) Done() bool {
	return r.Remaining == 0
}

// SubOperationCounter tracks sub-operation outcomes while a batch runs. It may be
// read from other goroutines through Snapshot.
type SubOperationCounter struct {
	total     int64
	remaining atomic.Int64
	success   atomic.Int64
	failure   atomic.Int64
	warning   atomic.Int64

	mu          sync.Mutex
	description string
}

// NewSubOperationCounter starts a counter with total pending sub-operations.
func NewSubOperationCounter(total int) *SubOperationCounter {
	c := &SubOperationCounter{total: int64(total)}
	c.remaining.Store(int64(total))
	return c
}

// Record moves one sub-operation from remaining to the class of status.
func (c *SubOperationCounter) Record(status uint16) StatusClass {
	class := ClassifyStatus(status)
	switch class {
	case StatusClassSuccess:
		c.success.Add(1)
	case StatusClassWarning:
		c.warning.Add(1)
	default:
		class = StatusClassFailure
		c.failure.Add(1)
	}
	c.remaining.Add(-1)
	return class
}

// Fail records one failed sub-operation with a description.
func (c *SubOperationCounter) Fail(description string) {
	c.failure.Add(1)
	c.remaining.Add(-1)
	c.Describe(description)
}

// FailRemaining marks every pending sub-operation as failed.
func (c *SubOperationCounter) FailRemaining(description string) {
	n := c.remaining.Swap(0)
	c.failure.Add(n)
	if n > 0 {
		c.Describe(description)
	}
}

// Describe sets the failure description unless one is already set.
func (c *SubOperationCounter) Describe(description string) {
	if description == "" {
		return
	}
	c.mu.Lock()
	if c.description == "" {
		c.description = description
	}
	c.mu.Unlock()
}

// Snapshot returns the current counts.
func (c *SubOperationCounter) Snapshot() OperationResult {
	c.mu.Lock()
	desc := c.description
	c.mu.Unlock()
	return OperationResult{
		Total:              int(c.total),
		Remaining:          int(c.remaining.Load()),
		Success:            int(c.success.Load()),
		Failure:            int(c.failure.Load()),
		Warning:            int(c.warning.Load()),
		FailureDescription: desc,
	}
}
