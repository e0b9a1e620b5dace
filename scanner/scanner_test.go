package scanner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gprojets/gprojets/config"
	"github.com/gprojets/gprojets/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves a fixed task list, filtered by the same due-date window
// contract the persistence layer implements.
type fakeSource struct {
	tasks []types.Task
	fail  bool
	calls int
}

func (f *fakeSource) UrgentTasks(now, horizon time.Time) ([]types.Task, error) {
	f.calls++
	if f.fail {
		return nil, fmt.Errorf("read failed")
	}
	urgent := make([]types.Task, 0, len(f.tasks))
	for _, task := range f.tasks {
		if task.Status != types.TaskStatusPending && task.Status != types.TaskStatusInProgress {
			continue
		}
		if task.DueDate == nil {
			continue
		}
		if task.DueDate.Before(now) || !task.DueDate.After(horizon) {
			urgent = append(urgent, task)
		}
	}
	return urgent, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	groups []string
	texts  []string
}

func (f *fakeNotifier) Notify(group, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups = append(f.groups, group)
	f.texts = append(f.texts, text)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

func timePtr(t time.Time) *time.Time { return &t }

func testTasks(now time.Time) []types.Task {
	project := &types.Project{Id: 1, Title: "Website"}
	return []types.Task{
		{Id: 1, Title: "Deploy", Status: types.TaskStatusInProgress, Project: project, DueDate: timePtr(now.Add(-time.Hour))},
		{Id: 2, Title: "Review", Status: types.TaskStatusPending, Project: project, DueDate: timePtr(now.Add(12 * time.Hour))},
		{Id: 3, Title: "Refactor", Status: types.TaskStatusPending, Project: project, DueDate: timePtr(now.Add(48 * time.Hour))},
		{Id: 4, Title: "Archive", Status: types.TaskStatusDone, Project: project, DueDate: timePtr(now.Add(-time.Hour))},
		{Id: 5, Title: "Someday", Status: types.TaskStatusPending, Project: project, DueDate: nil},
	}
}

func TestScanNotifiesUrgentTasks(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{tasks: testTasks(now)}
	notifier := &fakeNotifier{}
	s, err := New(source, notifier, config.ScannerConfig{})
	require.NoError(t, err)

	s.Scan(context.Background(), now)

	// only the overdue and the approaching task qualify: done tasks, tasks
	// without a due date and tasks beyond the lookahead are excluded
	require.Len(t, notifier.texts, 2)
	assert.Equal(t, []string{"Admins", "Admins"}, notifier.groups)
	assert.Equal(t, "Task 'Deploy' of project 'Website' is overdue (due 2026-03-10)", notifier.texts[0])
	assert.Equal(t, "Task 'Review' of project 'Website' is approaching its deadline (due 2026-03-10)", notifier.texts[1])
}

func TestScanRenotifiesEveryCycle(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{tasks: testTasks(now)}
	notifier := &fakeNotifier{}
	s, err := New(source, notifier, config.ScannerConfig{})
	require.NoError(t, err)

	// a task that stays urgent is re-notified on every cycle, there is no
	// notified-once suppression
	for i := 0; i < 3; i++ {
		s.Scan(context.Background(), now.Add(time.Duration(i)*30*time.Second))
	}
	assert.Len(t, notifier.texts, 6)
}

func TestScanReadFailureSkipsCycle(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{tasks: testTasks(now), fail: true}
	notifier := &fakeNotifier{}
	s, err := New(source, notifier, config.ScannerConfig{})
	require.NoError(t, err)

	s.Scan(context.Background(), now)
	assert.Empty(t, notifier.texts)

	// the loop recovers on the next cycle
	source.fail = false
	s.Scan(context.Background(), now)
	assert.Len(t, notifier.texts, 2)
}

func TestScanHonorsCancellation(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{tasks: testTasks(now)}
	notifier := &fakeNotifier{}
	s, err := New(source, notifier, config.ScannerConfig{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Scan(ctx, now)
	assert.Empty(t, notifier.texts)
}

func TestScannerConfigOverrides(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{tasks: testTasks(now)}
	notifier := &fakeNotifier{}
	s, err := New(source, notifier, config.ScannerConfig{Lookahead: 72 * time.Hour, Group: "chef"})
	require.NoError(t, err)

	s.Scan(context.Background(), now)

	// the wider lookahead pulls in the 48h task, and the notifications go
	// to the configured group
	require.Len(t, notifier.texts, 3)
	assert.Equal(t, []string{"chef", "chef", "chef"}, notifier.groups)
}

func TestScannerFilter(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{tasks: testTasks(now)}
	notifier := &fakeNotifier{}
	s, err := New(source, notifier, config.ScannerConfig{Filter: `Task.Overdue`})
	require.NoError(t, err)

	s.Scan(context.Background(), now)
	require.Len(t, notifier.texts, 1)
	assert.Contains(t, notifier.texts[0], "'Deploy'")

	_, err = New(source, notifier, config.ScannerConfig{Filter: `Task.NoSuchField ==`})
	assert.Error(t, err)
}

func TestRunStopsPromptly(t *testing.T) {
	now := time.Now().UTC()
	source := &fakeSource{tasks: testTasks(now)}
	notifier := &fakeNotifier{}
	s, err := New(source, notifier, config.ScannerConfig{Interval: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	// the immediate first scan fires before the first tick
	assert.Eventually(t, func() bool { return notifier.count() >= 2 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scanner did not stop after cancellation")
	}
	assert.Equal(t, 1, source.calls)
}

func TestNotificationText(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	due := time.Date(2026, 3, 11, 23, 0, 0, 0, time.UTC)
	task := &types.Task{Title: "Deploy", Project: &types.Project{Title: "Website"}, DueDate: &due}
	assert.Equal(t, "Task 'Deploy' of project 'Website' is approaching its deadline (due 2026-03-11)", NotificationText(task, now))

	past := now.Add(-time.Minute)
	task.DueDate = &past
	assert.Equal(t, "Task 'Deploy' of project 'Website' is overdue (due 2026-03-10)", NotificationText(task, now))

	// a task without a project still renders
	task.Project = nil
	assert.Contains(t, NotificationText(task, now), "of project ''")
}
