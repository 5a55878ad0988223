// Package state provides SQLite-based persistence for foreman.
package state

import (
	"io"

	"github.com/tbaxter-dev/foreman/pkg/models"
)

// TaskStore handles task persistence operations.
type TaskStore interface {
	CreateTask(task models.Task) error
	GetTask(id string) (*TaskRow, error)
	UpdateTaskStatus(id string, status models.TaskStatus) error
	ListTasksByStatus(status models.TaskStatus) ([]TaskRow, error)
}

// RunStore handles terminal run record persistence.
type RunStore interface {
	SaveRunRecord(rec models.RunRecord) error
	GetRunRecord(taskID string) (*models.RunRecord, error)
}

// ApprovalStore handles the durable approval queue.
type ApprovalStore interface {
	EnqueueApproval(p PendingApproval) error
	ResolveApproval(taskID string, decision ApprovalDecision) error
	GetPendingApproval(taskID string) (*PendingApproval, error)
	ListPendingApprovals() ([]PendingApproval, error)
}

// Migrator handles database schema migrations.
// Separating this allows clients to depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the interface for foreman persistence.
// The router works with any backend implementing it, without depending on
// the concrete SQLite implementation. It composes focused sub-interfaces.
type Store interface {
	io.Closer
	Migrator
	TaskStore
	RunStore
	ApprovalStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store         = (*DB)(nil)
	_ Migrator      = (*DB)(nil)
	_ TaskStore     = (*DB)(nil)
	_ RunStore      = (*DB)(nil)
	_ ApprovalStore = (*DB)(nil)
)
