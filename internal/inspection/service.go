package inspection

import (
	"context"
	"errors"
)

// ErrNotFound is returned for unknown identifiers (work order, task,
// inspector, checklist item).
var ErrNotFound = errors.New("inspection: not found")

// Service is the consumed surface of the inspection domain. Every call may
// suspend on network I/O; handlers treat failures as conversational errors,
// never as process faults.
type Service interface {
	GetTodayJobsForInspector(ctx context.Context, inspectorID string) ([]WorkOrder, error)
	GetWorkOrderByID(ctx context.Context, jobID string) (WorkOrder, error)
	UpdateWorkOrderStatus(ctx context.Context, jobID, status string) error
	UpdateWorkOrderDetails(ctx context.Context, jobID, field, value string) error
	GetLocationsWithCompletionStatus(ctx context.Context, jobID string) ([]LocationStatus, error)
	GetTasksByLocation(ctx context.Context, jobID, locationName string) ([]Task, error)
	UpdateTaskStatus(ctx context.Context, taskID, status, notes string) error
	CompleteAllTasksForLocation(ctx context.Context, jobID, locationName, notes string) error
	GetWorkOrderProgress(ctx context.Context, jobID string) (Progress, error)
	GetInspectorByPhone(ctx context.Context, phone string) (Inspector, error)
	GetTaskMedia(ctx context.Context, taskID string) (TaskMedia, error)
	GetContractChecklistItemIDByLocation(ctx context.Context, jobID, locationName string) (string, error)
	AppendChecklistItemMedia(ctx context.Context, checklistItemID, kind, url string) error
}
