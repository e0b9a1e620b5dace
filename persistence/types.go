package persistence

import (
	"fmt"
	"time"

	"github.com/gprojets/gprojets/config"
	"github.com/gprojets/gprojets/types"
)

// DefaultHistoryLimit is used when a history query passes a non-positive
// limit.
const DefaultHistoryLimit = 50

// Persister is the durable storage consumed by the hub (messages) and the
// deadline scanner (tasks, read-only).
type Persister interface {
	// StoreMessage assigns a monotonic id and a server-side UTC timestamp
	// and appends the message atomically. A caller-supplied id or timestamp
	// is ignored.
	StoreMessage(msg *types.Message) error

	// MessageHistory returns the most recent limit messages in chronological
	// (oldest-first) order. The newest rows are selected first (descending),
	// then re-sorted ascending: truncation favors the newest messages.
	MessageHistory(limit int) ([]types.Message, error)

	// UrgentTasks returns tasks with status pending or in-progress whose due
	// date is set and either already past now or within [now, horizon]. The
	// parent project is populated where present.
	UrgentTasks(now, horizon time.Time) ([]types.Task, error)

	StoreProject(project *types.Project) error
	Projects() ([]types.Project, error)
	StoreTask(task *types.Task) error

	Close() error
}

// NewPersister creates the persister selected by the configuration.
func NewPersister(cfg *config.Config) (Persister, error) {
	switch cfg.PersistenceConfig.Type {
	case "buntdb":
		return NewBuntPersister(cfg)
	case "sqlite":
		return NewGormPersister(cfg)
	case "postgres":
		return NewPostgresPersister(cfg)
	case "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown persistence type %q", cfg.PersistenceConfig.Type)
}

// isUrgent implements the urgency window shared by the backends that filter
// in application code: status scannable, due date set and (due < now OR
// now <= due <= horizon). Overdue and approaching tasks form a single set.
func isUrgent(task *types.Task, now, horizon time.Time) bool {
	switch task.Status {
	case types.TaskStatusPending, types.TaskStatusInProgress:
	default:
		return false
	}
	if task.DueDate == nil {
		return false
	}
	due := *task.DueDate
	if due.Before(now) {
		return true
	}
	return !due.After(horizon)
}
