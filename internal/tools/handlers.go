package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/inspectra/fieldbot/internal/assistant"
	"github.com/inspectra/fieldbot/internal/inspection"
	"github.com/inspectra/fieldbot/internal/session"
)

type jobArgs struct {
	WorkOrderID string `json:"workOrderId"`
}

type tasksArgs struct {
	WorkOrderID string `json:"workOrderId"`
	Location    string `json:"location"`
}

type completeTaskArgs struct {
	TaskID      string `json:"taskId"`
	WorkOrderID string `json:"workOrderId"`
	Location    string `json:"location"`
	Notes       string `json:"notes"`
}

type updateStatusArgs struct {
	WorkOrderID string `json:"workOrderId"`
	Status      string `json:"status"`
}

type updateDetailsArgs struct {
	WorkOrderID string `json:"workOrderId"`
	Field       string `json:"field"`
	Value       string `json:"value"`
}

type identifyArgs struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

type taskMediaArgs struct {
	TaskID string `json:"taskId"`
}

func decode[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("bad tool arguments: %w", err)
	}
	return out, nil
}

func (d *Dispatcher) handleGetTodayJobs(ctx context.Context, ref SessionRef, _ json.RawMessage) (map[string]any, error) {
	inspectorID, err := d.requireInspector(ctx, ref)
	if err != nil {
		return nil, err
	}
	jobs, err := d.domain.GetTodayJobsForInspector(ctx, inspectorID)
	if err != nil {
		return nil, fmt.Errorf("list today's jobs: %w", err)
	}
	return map[string]any{"jobs": jobs, "count": len(jobs)}, nil
}

func (d *Dispatcher) handleConfirmJob(ctx context.Context, ref SessionRef, raw json.RawMessage) (map[string]any, error) {
	args, err := decode[jobArgs](raw)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.WorkOrderID) == "" {
		return nil, fmt.Errorf("workOrderId is required")
	}
	if _, err := d.requireInspector(ctx, ref); err != nil {
		return nil, err
	}
	wo, err := d.domain.GetWorkOrderByID(ctx, args.WorkOrderID)
	if err != nil {
		return nil, fmt.Errorf("load work order: %w", err)
	}
	if _, err := d.merge(ctx, ref, func(m *session.Metadata) {
		m.WorkOrderID = wo.ID
		m.CustomerName = wo.CustomerName
		m.PropertyAddress = wo.PropertyAddress
		m.PostalCode = wo.PostalCode
		m.CurrentLocation = ""
		m.Phase = session.PhaseConfirming
	}); err != nil {
		return nil, err
	}
	return map[string]any{"workOrder": wo}, nil
}

func (d *Dispatcher) handleStartJob(ctx context.Context, ref SessionRef, raw json.RawMessage) (map[string]any, error) {
	args, err := decode[jobArgs](raw)
	if err != nil {
		return nil, err
	}
	jobID, err := d.resolveWorkOrderID(ctx, ref, args.WorkOrderID)
	if err != nil {
		return nil, err
	}
	if err := d.domain.UpdateWorkOrderStatus(ctx, jobID, inspection.StatusStarted); err != nil {
		return nil, fmt.Errorf("start job: %w", err)
	}
	if _, err := d.merge(ctx, ref, func(m *session.Metadata) {
		m.WorkOrderID = jobID
		m.Phase = session.PhaseStarted
	}); err != nil {
		return nil, err
	}
	return map[string]any{"workOrderId": jobID, "status": inspection.StatusStarted}, nil
}

func (d *Dispatcher) handleGetJobLocations(ctx context.Context, ref SessionRef, raw json.RawMessage) (map[string]any, error) {
	args, err := decode[jobArgs](raw)
	if err != nil {
		return nil, err
	}
	jobID, err := d.resolveWorkOrderID(ctx, ref, args.WorkOrderID)
	if err != nil {
		return nil, err
	}
	locations, err := d.domain.GetLocationsWithCompletionStatus(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return map[string]any{"locations": locations}, nil
}

// handleGetTasksForLocation lists tasks and records the location as current,
// so a "complete all" in the next turn can recover it from metadata.
func (d *Dispatcher) handleGetTasksForLocation(ctx context.Context, ref SessionRef, raw json.RawMessage) (map[string]any, error) {
	args, err := decode[tasksArgs](raw)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Location) == "" {
		return nil, fmt.Errorf("location is required")
	}
	jobID, err := d.resolveWorkOrderID(ctx, ref, args.WorkOrderID)
	if err != nil {
		return nil, err
	}
	tasks, err := d.domain.GetTasksByLocation(ctx, jobID, args.Location)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	if _, err := d.merge(ctx, ref, func(m *session.Metadata) {
		m.CurrentLocation = args.Location
		m.LocationTouched = time.Now()
	}); err != nil {
		return nil, err
	}
	return map[string]any{
		"location": args.Location,
		"tasks":    tasks,
		"reminder": "offer a final numbered option to mark all tasks in this location complete",
	}, nil
}

// handleCompleteTask completes one task, or every task under the session's
// current location when the sentinel is passed. For the sentinel the
// location argument is documented as unreliable and ignored; metadata is
// authoritative.
func (d *Dispatcher) handleCompleteTask(ctx context.Context, ref SessionRef, raw json.RawMessage) (map[string]any, error) {
	args, err := decode[completeTaskArgs](raw)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.TaskID) == "" {
		return nil, fmt.Errorf("taskId is required")
	}

	if args.TaskID == assistant.CompleteAllSentinel {
		meta, err := d.metadata(ctx, ref)
		if err != nil {
			return nil, err
		}
		if meta.CurrentLocation == "" {
			return nil, fmt.Errorf("no current location selected; ask the inspector to pick a location first")
		}
		jobID, err := d.resolveWorkOrderID(ctx, ref, args.WorkOrderID)
		if err != nil {
			return nil, err
		}
		if err := d.domain.CompleteAllTasksForLocation(ctx, jobID, meta.CurrentLocation, args.Notes); err != nil {
			return nil, fmt.Errorf("complete all tasks: %w", err)
		}
		if _, err := d.merge(ctx, ref, func(m *session.Metadata) {
			m.LocationTouched = time.Now()
		}); err != nil {
			return nil, err
		}
		return map[string]any{
			"completedAll": true,
			"location":     meta.CurrentLocation,
		}, nil
	}

	if err := d.domain.UpdateTaskStatus(ctx, args.TaskID, inspection.TaskCompleted, args.Notes); err != nil {
		return nil, fmt.Errorf("complete task: %w", err)
	}
	return map[string]any{"taskId": args.TaskID, "status": inspection.TaskCompleted}, nil
}

func (d *Dispatcher) handleUpdateJobStatus(ctx context.Context, ref SessionRef, raw json.RawMessage) (map[string]any, error) {
	args, err := decode[updateStatusArgs](raw)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Status) == "" {
		return nil, fmt.Errorf("status is required")
	}
	jobID, err := d.resolveWorkOrderID(ctx, ref, args.WorkOrderID)
	if err != nil {
		return nil, err
	}
	if err := d.domain.UpdateWorkOrderStatus(ctx, jobID, args.Status); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	return map[string]any{"workOrderId": jobID, "status": args.Status}, nil
}

func (d *Dispatcher) handleUpdateJobDetails(ctx context.Context, ref SessionRef, raw json.RawMessage) (map[string]any, error) {
	args, err := decode[updateDetailsArgs](raw)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Field) == "" {
		return nil, fmt.Errorf("field is required")
	}
	jobID, err := d.resolveWorkOrderID(ctx, ref, args.WorkOrderID)
	if err != nil {
		return nil, err
	}
	if err := d.domain.UpdateWorkOrderDetails(ctx, jobID, args.Field, args.Value); err != nil {
		return nil, fmt.Errorf("update details: %w", err)
	}
	return map[string]any{"workOrderId": jobID, "field": args.Field}, nil
}

func (d *Dispatcher) handleIdentifyInspector(ctx context.Context, ref SessionRef, raw json.RawMessage) (map[string]any, error) {
	args, err := decode[identifyArgs](raw)
	if err != nil {
		return nil, err
	}
	phone := strings.TrimSpace(args.Phone)
	if phone == "" {
		phone = ref.PhoneKey
	}
	insp, err := d.domain.GetInspectorByPhone(ctx, phone)
	if err != nil {
		if strings.TrimSpace(args.Name) != "" {
			return nil, fmt.Errorf("no inspector registered under %s; registration is handled by the office, ask them to add %q first", phone, args.Name)
		}
		return nil, fmt.Errorf("no inspector registered under %s", phone)
	}
	if _, err := d.merge(ctx, ref, func(m *session.Metadata) {
		m.InspectorID = insp.ID
		m.InspectorName = insp.Name
	}); err != nil {
		return nil, err
	}
	return map[string]any{"inspector": insp}, nil
}

// handleGetTaskMedia defends against the model passing the inspector's own
// id where a task id belongs: both are opaque strings to it. When they
// match, the real checklist-item id is re-resolved from the session's work
// order and current location.
func (d *Dispatcher) handleGetTaskMedia(ctx context.Context, ref SessionRef, raw json.RawMessage) (map[string]any, error) {
	args, err := decode[taskMediaArgs](raw)
	if err != nil {
		return nil, err
	}
	taskID := strings.TrimSpace(args.TaskID)
	if taskID == "" {
		return nil, fmt.Errorf("taskId is required")
	}

	meta, err := d.metadata(ctx, ref)
	if err != nil {
		return nil, err
	}
	if meta.InspectorID != "" && taskID == meta.InspectorID {
		if meta.WorkOrderID == "" || meta.CurrentLocation == "" {
			return nil, fmt.Errorf("taskId %q is the inspector's own id and no job/location context is available to resolve the real task; list the location's tasks first", taskID)
		}
		resolved, err := d.domain.GetContractChecklistItemIDByLocation(ctx, meta.WorkOrderID, meta.CurrentLocation)
		if err != nil {
			return nil, fmt.Errorf("taskId matched the inspector id and resolving the checklist item for %q failed: %w", meta.CurrentLocation, err)
		}
		d.logger.Info("task media id corrected",
			slog.String("passed", taskID),
			slog.String("resolved", resolved))
		taskID = resolved
	}

	media, err := d.domain.GetTaskMedia(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task media: %w", err)
	}
	return map[string]any{"media": media}, nil
}

func (d *Dispatcher) handleGetJobProgress(ctx context.Context, ref SessionRef, raw json.RawMessage) (map[string]any, error) {
	args, err := decode[jobArgs](raw)
	if err != nil {
		return nil, err
	}
	jobID, err := d.resolveWorkOrderID(ctx, ref, args.WorkOrderID)
	if err != nil {
		return nil, err
	}
	progress, err := d.domain.GetWorkOrderProgress(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	return map[string]any{"progress": progress}, nil
}

// resolveWorkOrderID prefers the explicit argument and falls back to the
// session's active job.
func (d *Dispatcher) resolveWorkOrderID(ctx context.Context, ref SessionRef, explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return strings.TrimSpace(explicit), nil
	}
	meta, err := d.metadata(ctx, ref)
	if err != nil {
		return "", err
	}
	if meta.WorkOrderID == "" {
		return "", fmt.Errorf("no active job; list today's jobs and confirm one first")
	}
	return meta.WorkOrderID, nil
}
