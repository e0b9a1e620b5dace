package types

import "time"

// TaskStatus is the workflow state of a task. Only pending and in-progress
// tasks are considered by the deadline scanner.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)

// ScannableStatuses returns the statuses the deadline scanner selects.
func ScannableStatuses() []TaskStatus {
	return []TaskStatus{TaskStatusPending, TaskStatusInProgress}
}

// Project is the parent container of tasks. The realtime layer only reads
// it for notification texts, the full project CRUD lives elsewhere.
type Project struct {
	Id    int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	Title string `json:"title"`
}

// Task is read-only input to the deadline scanner, owned by the project
// subsystem. StartDate and DueDate are optional.
type Task struct {
	Id          int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status" gorm:"index"`
	AssignedTo  string     `json:"assignedTo"`
	ProjectId   int64      `json:"projectId"`
	Project     *Project   `json:"project,omitempty" gorm:"foreignKey:ProjectId"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty" gorm:"index"`
}

// ProjectTitle returns the parent project title, empty when not loaded.
func (t *Task) ProjectTitle() string {
	if t.Project == nil {
		return ""
	}
	return t.Project.Title
}
