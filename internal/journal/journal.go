// Package journal records submission cycles and memory operations locally.
package journal

import (
	"context"
	"time"

	"github.com/rcliao/chat-memory/internal/model"
)

// ListParams holds parameters for listing cycles.
type ListParams struct {
	Site    string
	Outcome string
	Limit   int
}

// Operation is a memory operation reported for a cycle.
type Operation struct {
	CycleID   string    `json:"cycle_id"`
	Event     string    `json:"event"`
	MemoryID  string    `json:"memory_id"`
	Memory    string    `json:"memory"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Entry is a cycle with its operations.
type Entry struct {
	model.Cycle
	Operations []Operation `json:"operations,omitempty"`
}

// Journal defines the cycle journal interface.
type Journal interface {
	// RecordCycle stores a finished cycle.
	RecordCycle(ctx context.Context, c model.Cycle) error

	// RecordOperations stores what the memory service did for a cycle.
	RecordOperations(ctx context.Context, cycleID string, ops []model.OperationRecord, addErr error) error

	// List lists cycles, newest first.
	List(ctx context.Context, p ListParams) ([]model.Cycle, error)

	// Get returns a cycle with its operations.
	Get(ctx context.Context, id string) (*Entry, error)

	// Prune deletes cycles older than the given age. Returns the number removed.
	Prune(ctx context.Context, olderThan time.Duration) (int, error)

	// Close closes the journal.
	Close() error
}
