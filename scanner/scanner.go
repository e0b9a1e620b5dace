// Package scanner implements the background deadline sweep: it periodically
// queries task due dates and pushes notifications for overdue or nearly due
// tasks to the admin group.
package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/antonmedv/expr/vm"
	"github.com/gprojets/gprojets/config"
	"github.com/gprojets/gprojets/globals"
	"github.com/gprojets/gprojets/types"
	"github.com/robfig/cron/v3"
)

const (
	defaultInterval  = 30 * time.Second
	defaultLookahead = 24 * time.Hour
	defaultGroup     = "Admins"
)

// TaskSource yields the urgent tasks of a cycle. Satisfied by
// persistence.Persister; the scanner treats tasks as read-only input.
type TaskSource interface {
	UrgentTasks(now, horizon time.Time) ([]types.Task, error)
}

// Notifier delivers a notification text to a named group, best-effort.
// Satisfied by *ws.Hub.
type Notifier interface {
	Notify(group, text string)
}

// Scanner is the deadline scanning loop. It is constructed once, runs until
// its context is cancelled and communicates with the hub only through
// Notifier.
type Scanner struct {
	source    TaskSource
	notifier  Notifier
	interval  time.Duration
	lookahead time.Duration
	group     string
	filter    *vm.Program
}

func New(source TaskSource, notifier Notifier, cfg config.ScannerConfig) (*Scanner, error) {
	s := &Scanner{
		source:    source,
		notifier:  notifier,
		interval:  cfg.Interval,
		lookahead: cfg.Lookahead,
		group:     cfg.Group,
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.lookahead <= 0 {
		s.lookahead = defaultLookahead
	}
	if s.group == "" {
		s.group = defaultGroup
	}
	if cfg.Filter != "" {
		prog, err := CompileFilter(cfg.Filter)
		if err != nil {
			return nil, fmt.Errorf("compile scanner filter: %w", err)
		}
		s.filter = prog
	}
	return s, nil
}

// Run scans once immediately and then on every interval tick until the
// context is cancelled. Cancellation interrupts the wait between cycles
// promptly; a running cycle finishes, it is never killed mid-query.
func (s *Scanner) Run(ctx context.Context) {
	s.Scan(ctx, time.Now().UTC())
	runner := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := runner.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.Scan(ctx, time.Now().UTC())
	})
	if err != nil {
		globals.AppLogger.Error("could not schedule deadline scan", "error", err)
		return
	}
	runner.Start()
	<-ctx.Done()
	<-runner.Stop().Done()
	globals.AppLogger.Info("deadline scanner stopped")
}

// Scan runs a single cycle at the given instant. A failure reading tasks is
// logged and the cycle skipped, the loop is never terminated by it. Tasks
// that stay urgent are re-notified on every cycle, there is deliberately no
// suppression of already-notified tasks.
func (s *Scanner) Scan(ctx context.Context, now time.Time) {
	horizon := now.Add(s.lookahead)
	tasks, err := s.source.UrgentTasks(now, horizon)
	if err != nil {
		globals.AppLogger.Warn("could not read tasks, skipping cycle", "error", err)
		return
	}
	for i := range tasks {
		select {
		case <-ctx.Done():
			return
		default:
		}
		task := &tasks[i]
		if task.DueDate == nil {
			continue
		}
		if !s.allow(task, now) {
			continue
		}
		text := NotificationText(task, now)
		globals.AppLogger.Info("sending deadline notification", "task", task.Title, "group", s.group)
		s.notifier.Notify(s.group, text)
	}
}

// NotificationText composes the notification for an urgent task. A task is
// overdue iff its due date lies strictly before now; everything else in the
// urgent set is approaching. Dates are rendered with day granularity.
func NotificationText(task *types.Task, now time.Time) string {
	urgency := "approaching its deadline"
	if task.DueDate.Before(now) {
		urgency = "overdue"
	}
	return fmt.Sprintf("Task '%s' of project '%s' is %s (due %s)",
		task.Title, task.ProjectTitle(), urgency, task.DueDate.UTC().Format("2006-01-02"))
}
