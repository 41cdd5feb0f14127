package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inspectra/fieldbot/internal/assistant"
	"github.com/inspectra/fieldbot/internal/inspection"
	"github.com/inspectra/fieldbot/internal/session"
)

// fakeDomain is a scriptable inspection.Service.
type fakeDomain struct {
	inspectors map[string]inspection.Inspector
	workOrders map[string]inspection.WorkOrder
	tasks      map[string][]inspection.Task // keyed by jobID+"/"+location
	taskMedia  map[string]inspection.TaskMedia
	checklist  map[string]string // jobID+"/"+location -> checklist item id

	completedAll   []string // jobID+"/"+location+"/"+notes
	completedTasks []string
	statusUpdates  []string
	mediaAppends   []string
}

func newFakeDomain() *fakeDomain {
	return &fakeDomain{
		inspectors: map[string]inspection.Inspector{},
		workOrders: map[string]inspection.WorkOrder{},
		tasks:      map[string][]inspection.Task{},
		taskMedia:  map[string]inspection.TaskMedia{},
		checklist:  map[string]string{},
	}
}

func (f *fakeDomain) GetTodayJobsForInspector(_ context.Context, inspectorID string) ([]inspection.WorkOrder, error) {
	var out []inspection.WorkOrder
	for _, wo := range f.workOrders {
		if wo.InspectorID == inspectorID {
			out = append(out, wo)
		}
	}
	return out, nil
}

func (f *fakeDomain) GetWorkOrderByID(_ context.Context, jobID string) (inspection.WorkOrder, error) {
	wo, ok := f.workOrders[jobID]
	if !ok {
		return inspection.WorkOrder{}, inspection.ErrNotFound
	}
	return wo, nil
}

func (f *fakeDomain) UpdateWorkOrderStatus(_ context.Context, jobID, status string) error {
	if _, ok := f.workOrders[jobID]; !ok {
		return inspection.ErrNotFound
	}
	f.statusUpdates = append(f.statusUpdates, jobID+"="+status)
	return nil
}

func (f *fakeDomain) UpdateWorkOrderDetails(_ context.Context, jobID, field, value string) error {
	if _, ok := f.workOrders[jobID]; !ok {
		return inspection.ErrNotFound
	}
	return nil
}

func (f *fakeDomain) GetLocationsWithCompletionStatus(_ context.Context, jobID string) ([]inspection.LocationStatus, error) {
	return nil, nil
}

func (f *fakeDomain) GetTasksByLocation(_ context.Context, jobID, locationName string) ([]inspection.Task, error) {
	return f.tasks[jobID+"/"+locationName], nil
}

func (f *fakeDomain) UpdateTaskStatus(_ context.Context, taskID, status, notes string) error {
	f.completedTasks = append(f.completedTasks, taskID+"="+status)
	return nil
}

func (f *fakeDomain) CompleteAllTasksForLocation(_ context.Context, jobID, locationName, notes string) error {
	f.completedAll = append(f.completedAll, jobID+"/"+locationName+"/"+notes)
	return nil
}

func (f *fakeDomain) GetWorkOrderProgress(_ context.Context, jobID string) (inspection.Progress, error) {
	return inspection.Progress{WorkOrderID: jobID}, nil
}

func (f *fakeDomain) GetInspectorByPhone(_ context.Context, phone string) (inspection.Inspector, error) {
	insp, ok := f.inspectors[phone]
	if !ok {
		return inspection.Inspector{}, inspection.ErrNotFound
	}
	return insp, nil
}

func (f *fakeDomain) GetTaskMedia(_ context.Context, taskID string) (inspection.TaskMedia, error) {
	media, ok := f.taskMedia[taskID]
	if !ok {
		return inspection.TaskMedia{}, inspection.ErrNotFound
	}
	return media, nil
}

func (f *fakeDomain) GetContractChecklistItemIDByLocation(_ context.Context, jobID, locationName string) (string, error) {
	id, ok := f.checklist[jobID+"/"+locationName]
	if !ok {
		return "", inspection.ErrNotFound
	}
	return id, nil
}

func (f *fakeDomain) AppendChecklistItemMedia(_ context.Context, checklistItemID, kind, url string) error {
	f.mediaAppends = append(f.mediaAppends, checklistItemID+"/"+kind+"/"+url)
	return nil
}

type staticSeeder struct{ meta session.Metadata }

func (s staticSeeder) SeedSession(context.Context, string) (string, session.Metadata, error) {
	return "thread-1", s.meta, nil
}

func setup(t *testing.T, meta session.Metadata) (*Dispatcher, *fakeDomain, SessionRef) {
	t.Helper()
	domain := newFakeDomain()
	store := session.NewMemoryStore(nil, staticSeeder{meta: meta})
	ref := SessionRef{PhoneKey: "6591234567", ThreadID: "thread-1"}
	_, _, err := store.GetOrCreate(context.Background(), ref.PhoneKey)
	require.NoError(t, err)
	return NewDispatcher(nil, domain, store, nil), domain, ref
}

func call(t *testing.T, d *Dispatcher, ref SessionRef, name string, args any) map[string]any {
	t.Helper()
	var raw json.RawMessage
	if args != nil {
		encoded, err := json.Marshal(args)
		require.NoError(t, err)
		raw = encoded
	}
	out := d.Dispatch(context.Background(), ref, assistant.Invocation{
		ID:        "call-x",
		Name:      name,
		Arguments: raw,
	})
	require.Equal(t, "call-x", out.CallID)
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out.Output), &result))
	return result
}

func TestCompleteAllUsesMetadataLocation(t *testing.T) {
	t.Parallel()

	d, domain, ref := setup(t, session.Metadata{
		InspectorID:     "insp-1",
		WorkOrderID:     "WO-1",
		CurrentLocation: "Kitchen",
		Phase:           session.PhaseStarted,
	})
	domain.workOrders["WO-1"] = inspection.WorkOrder{ID: "WO-1", InspectorID: "insp-1"}

	result := call(t, d, ref, assistant.ToolCompleteTask, completeTaskArgs{
		TaskID:      assistant.CompleteAllSentinel,
		WorkOrderID: "WO-1",
		Location:    "Balcony", // unreliable argument, must be ignored
		Notes:       "all good",
	})

	require.Equal(t, true, result["success"])
	require.Equal(t, "Kitchen", result["location"])
	require.Equal(t, []string{"WO-1/Kitchen/all good"}, domain.completedAll)
	require.Empty(t, domain.completedTasks)
}

func TestCompleteAllWithoutLocationAsksToSelect(t *testing.T) {
	t.Parallel()

	d, domain, ref := setup(t, session.Metadata{InspectorID: "insp-1", WorkOrderID: "WO-1"})
	result := call(t, d, ref, assistant.ToolCompleteTask, completeTaskArgs{
		TaskID:      assistant.CompleteAllSentinel,
		WorkOrderID: "WO-1",
	})
	require.Equal(t, false, result["success"])
	require.Contains(t, result["error"], "pick a location")
	require.Empty(t, domain.completedAll)
}

func TestCompleteSingleTask(t *testing.T) {
	t.Parallel()

	d, domain, ref := setup(t, session.Metadata{InspectorID: "insp-1", WorkOrderID: "WO-1"})
	result := call(t, d, ref, assistant.ToolCompleteTask, completeTaskArgs{
		TaskID:      "task-9",
		WorkOrderID: "WO-1",
	})
	require.Equal(t, true, result["success"])
	require.Equal(t, []string{"task-9=completed"}, domain.completedTasks)
}

func TestGetTasksWritesCurrentLocationBack(t *testing.T) {
	t.Parallel()

	d, domain, ref := setup(t, session.Metadata{InspectorID: "insp-1", WorkOrderID: "WO-1"})
	domain.tasks["WO-1/Kitchen"] = []inspection.Task{{ID: "t1", Action: "Check hob", Location: "Kitchen"}}

	result := call(t, d, ref, assistant.ToolGetTasksForLocation, tasksArgs{
		WorkOrderID: "WO-1",
		Location:    "Kitchen",
	})
	require.Equal(t, true, result["success"])

	sess, err := d.sessions.Get(context.Background(), ref.PhoneKey)
	require.NoError(t, err)
	require.Equal(t, "Kitchen", sess.Metadata.CurrentLocation)
	require.False(t, sess.Metadata.LocationTouched.IsZero())
}

func TestGetTaskMediaCorrectsInspectorID(t *testing.T) {
	t.Parallel()

	d, domain, ref := setup(t, session.Metadata{
		InspectorID:     "insp-1",
		WorkOrderID:     "WO-1",
		CurrentLocation: "Kitchen",
	})
	domain.checklist["WO-1/Kitchen"] = "item-42"
	domain.taskMedia["item-42"] = inspection.TaskMedia{TaskID: "item-42", Location: "Kitchen", Photos: []string{"https://cdn/x.jpg"}}

	result := call(t, d, ref, assistant.ToolGetTaskMedia, taskMediaArgs{TaskID: "insp-1"})
	require.Equal(t, true, result["success"])
	media := result["media"].(map[string]any)
	require.Equal(t, "item-42", media["taskId"])
}

func TestGetTaskMediaInspectorIDWithoutContextFails(t *testing.T) {
	t.Parallel()

	d, _, ref := setup(t, session.Metadata{InspectorID: "insp-1"})
	result := call(t, d, ref, assistant.ToolGetTaskMedia, taskMediaArgs{TaskID: "insp-1"})
	require.Equal(t, false, result["success"])
	require.Contains(t, result["error"], "inspector's own id")
}

func TestUnidentifiedInspectorFallsBackToPhoneLookup(t *testing.T) {
	t.Parallel()

	d, domain, ref := setup(t, session.Metadata{})
	domain.inspectors[ref.PhoneKey] = inspection.Inspector{ID: "insp-7", Name: "Ahmad", Phone: ref.PhoneKey}
	domain.workOrders["WO-5"] = inspection.WorkOrder{ID: "WO-5", InspectorID: "insp-7"}

	result := call(t, d, ref, assistant.ToolGetTodayJobs, nil)
	require.Equal(t, true, result["success"])
	require.EqualValues(t, 1, result["count"])

	sess, err := d.sessions.Get(context.Background(), ref.PhoneKey)
	require.NoError(t, err)
	require.Equal(t, "insp-7", sess.Metadata.InspectorID)
}

func TestUnidentifiedInspectorStructuredError(t *testing.T) {
	t.Parallel()

	d, _, ref := setup(t, session.Metadata{})
	result := call(t, d, ref, assistant.ToolGetTodayJobs, nil)
	require.Equal(t, false, result["success"])
	require.Equal(t, ErrIdentificationRequired.Error(), result["error"])
}

func TestUnknownToolNameIsStructuredError(t *testing.T) {
	t.Parallel()

	d, _, ref := setup(t, session.Metadata{})
	out := d.Dispatch(context.Background(), ref, assistant.Invocation{ID: "c1", Name: "no_such_tool"})
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out.Output), &result))
	require.Equal(t, false, result["success"])
	require.Contains(t, result["error"], "no_such_tool")
}

func TestDispatchAllProducesOutputForEveryCall(t *testing.T) {
	t.Parallel()

	d, domain, ref := setup(t, session.Metadata{InspectorID: "insp-1", WorkOrderID: "WO-1"})
	domain.workOrders["WO-1"] = inspection.WorkOrder{ID: "WO-1", InspectorID: "insp-1"}

	outputs := d.DispatchAll(context.Background(), ref, []assistant.Invocation{
		{ID: "a", Name: assistant.ToolGetJobProgress, Arguments: json.RawMessage(`{"workOrderId":"WO-1"}`)},
		{ID: "b", Name: "bogus"},
	})
	require.Len(t, outputs, 2)
	require.Equal(t, "a", outputs[0].CallID)
	require.Equal(t, "b", outputs[1].CallID)
	require.Contains(t, outputs[1].Output, `"success":false`)
}

func TestConfirmJobLoadsContext(t *testing.T) {
	t.Parallel()

	d, domain, ref := setup(t, session.Metadata{InspectorID: "insp-1"})
	domain.workOrders["WO-2"] = inspection.WorkOrder{
		ID:              "WO-2",
		InspectorID:     "insp-1",
		CustomerName:    "Lim Family",
		PropertyAddress: "12 Clementi Ave 3",
		PostalCode:      "129905",
	}

	result := call(t, d, ref, assistant.ToolConfirmJob, jobArgs{WorkOrderID: "WO-2"})
	require.Equal(t, true, result["success"])

	sess, err := d.sessions.Get(context.Background(), ref.PhoneKey)
	require.NoError(t, err)
	require.Equal(t, "WO-2", sess.Metadata.WorkOrderID)
	require.Equal(t, "Lim Family", sess.Metadata.CustomerName)
	require.Equal(t, session.PhaseConfirming, sess.Metadata.Phase)
}

func TestHandlerErrorNeverEscapes(t *testing.T) {
	t.Parallel()

	// a session store miss inside a handler becomes a structured payload
	domain := newFakeDomain()
	store := session.NewMemoryStore(nil, staticSeeder{})
	d := NewDispatcher(nil, domain, store, nil)
	out := d.Dispatch(context.Background(), SessionRef{PhoneKey: "never-created"}, assistant.Invocation{
		ID:   "c9",
		Name: assistant.ToolGetTodayJobs,
	})
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out.Output), &result))
	require.Equal(t, false, result["success"])
	require.Contains(t, result["error"], "session")
}
