package scanner

import (
	"time"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"github.com/gprojets/gprojets/globals"
	"github.com/gprojets/gprojets/types"
)

// TaskEnv is the task view exposed to notification filter expressions.
// Once this struct is fixed it should not be changed, otherwise deployed
// filter expressions may not compile any more.
type TaskEnv struct {
	Title    string
	Project  string
	Assignee string
	Overdue  bool
	DueDate  string
}

// Env is the environment of a notification filter expression. The
// expression must evaluate to a boolean; false suppresses the notification.
type Env struct {
	Task TaskEnv
}

// CompileFilter compiles a notification filter expression.
func CompileFilter(filter string) (*vm.Program, error) {
	return expr.Compile(filter, expr.Env(Env{}))
}

// allow evaluates the configured filter for a task. No filter means deliver
// everything; a filter that fails to evaluate also delivers (notifications
// are the product, a broken filter must not silence them).
func (s *Scanner) allow(task *types.Task, now time.Time) bool {
	if s.filter == nil {
		return true
	}
	env := Env{
		Task: TaskEnv{
			Title:    task.Title,
			Project:  task.ProjectTitle(),
			Assignee: task.AssignedTo,
			Overdue:  task.DueDate.Before(now),
			DueDate:  task.DueDate.UTC().Format("2006-01-02"),
		},
	}
	res, err := expr.Run(s.filter, env)
	if err != nil {
		globals.AppLogger.Error("could not run notification filter", "error", err)
		return true
	}
	if allowed, ok := res.(bool); ok {
		return allowed
	}
	return true
}
