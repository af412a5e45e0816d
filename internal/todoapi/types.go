package todoapi

import "time"

// Task status values used by the remote service.
const (
	StatusNotStarted      = "notStarted"
	StatusInProgress      = "inProgress"
	StatusCompleted       = "completed"
	StatusWaitingOnOthers = "waitingOnOthers"
	StatusDeferred        = "deferred"
)

// Collection is a remote named task list.
type Collection struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// DateTimeTimeZone is the remote representation of a date/time with an
// explicit timezone.
type DateTimeTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// DueDate extracts the YYYY-MM-DD portion, or empty when unset.
func (d *DateTimeTimeZone) DueDate() string {
	if d == nil || len(d.DateTime) < 10 {
		return ""
	}
	return d.DateTime[:10]
}

// ChecklistItem is a nested sub-item of a remote task.
type ChecklistItem struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"displayName"`
	IsChecked    bool      `json:"isChecked"`
	LastModified time.Time `json:"lastModifiedDateTime"`
}

// Task is one remote task as observed through the service API.
type Task struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	Status         string            `json:"status"`
	LastModified   time.Time         `json:"lastModifiedDateTime"`
	Due            *DateTimeTimeZone `json:"dueDateTime,omitempty"`
	ChecklistItems []ChecklistItem   `json:"checklistItems,omitempty"`
}

// Completed reports whether the remote task is in the completed status.
func (t *Task) Completed() bool {
	return t.Status == StatusCompleted
}

// TaskCreate carries the fields for a remote create call.
type TaskCreate struct {
	Title     string
	Completed bool
	DueDate   string // YYYY-MM-DD, empty for none
}

// TaskPatch is a partial update. Nil pointer fields are left unchanged;
// an empty DueDate with DueSet clears the remote due date.
type TaskPatch struct {
	Title   *string
	Status  *string
	DueSet  bool
	DueDate string
}
