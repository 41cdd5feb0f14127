// Package inspection defines the inspection domain collaborator: work
// orders, checklist locations, tasks, and inspectors. The CRUD service
// itself is external; this package holds the consumed interface, the wire
// types, and a thin REST client.
package inspection

import "time"

// Work order statuses understood by the domain service.
const (
	StatusScheduled = "scheduled"
	StatusStarted   = "started"
	StatusCompleted = "completed"
)

// Task statuses.
const (
	TaskPending   = "pending"
	TaskCompleted = "completed"
)

// MediaKindPhoto and MediaKindVideo classify a checklist attachment.
const (
	MediaKindPhoto = "photo"
	MediaKindVideo = "video"
)

// Inspector is a field inspector identified by phone.
type Inspector struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Active bool   `json:"active"`
}

// WorkOrder is one inspection job.
type WorkOrder struct {
	ID              string    `json:"id"`
	InspectorID     string    `json:"inspectorId"`
	CustomerName    string    `json:"customerName"`
	PropertyAddress string    `json:"propertyAddress"`
	PostalCode      string    `json:"postalCode"`
	Status          string    `json:"status"`
	ScheduledAt     time.Time `json:"scheduledAt"`
}

// LocationStatus is one checklist location (room/area) with its completion
// rollup, ordered as the checklist defines.
type LocationStatus struct {
	Name            string     `json:"name"`
	ChecklistItemID string     `json:"checklistItemId"`
	TotalTasks      int        `json:"totalTasks"`
	CompletedTasks  int        `json:"completedTasks"`
	Completed       bool       `json:"completed"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// Task is a single inspectable item within a location.
type Task struct {
	ID       string `json:"id"`
	Action   string `json:"action"`
	Location string `json:"location"`
	Status   string `json:"status"`
	Notes    string `json:"notes,omitempty"`
}

// Progress is the completion rollup for one work order.
type Progress struct {
	WorkOrderID    string  `json:"workOrderId"`
	TotalTasks     int     `json:"totalTasks"`
	CompletedTasks int     `json:"completedTasks"`
	Percent        float64 `json:"percent"`
}

// TaskMedia lists the attachments already linked to a checklist item.
type TaskMedia struct {
	TaskID   string   `json:"taskId"`
	Location string   `json:"location"`
	Photos   []string `json:"photos"`
	Videos   []string `json:"videos"`
}
