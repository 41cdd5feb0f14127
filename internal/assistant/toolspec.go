package assistant

import "github.com/sashabaranov/go-openai"

// Declared tool names. The dispatcher registers a handler per name.
const (
	ToolGetTodayJobs        = "get_today_jobs"
	ToolConfirmJob          = "confirm_job"
	ToolStartJob            = "start_job"
	ToolGetJobLocations     = "get_job_locations"
	ToolGetTasksForLocation = "get_tasks_for_location"
	ToolCompleteTask        = "complete_task"
	ToolUpdateJobStatus     = "update_job_status"
	ToolUpdateJobDetails    = "update_job_details"
	ToolIdentifyInspector   = "identify_inspector"
	ToolGetTaskMedia        = "get_task_media"
	ToolGetJobProgress      = "get_job_progress"
)

// CompleteAllSentinel is the literal taskId value the model passes to mark
// every task under the current location complete.
const CompleteAllSentinel = "complete_all_tasks"

// instructions is the behavioral policy the assistant is provisioned with.
const instructions = `You are a WhatsApp assistant for field inspectors managing inspection jobs.

Conversation conventions:
- When presenting choices (jobs, locations, tasks), number them [1], [2], [3] so the inspector can reply with a single digit.
- The numbers you display are a UI convenience only. Tool calls always take the database identifier of the item, never the displayed number. Keep the mapping from displayed number to identifier yourself and translate before every tool call.
- When listing the tasks of a location, always append one extra numbered option at the end: "Mark all tasks in this location as complete". If the inspector picks it, call complete_task with taskId set to "complete_all_tasks".
- Keep replies short; this is a phone chat. Use line breaks, not markdown tables.
- If a tool returns success=false, explain the error field to the inspector in plain language and suggest what to do next.
- If the inspector is not yet identified, ask for their name or registered phone number and call identify_inspector before anything else.
- Confirm a job (confirm_job) before starting it (start_job).`

// toolDefinitions declares the callable surface.
func toolDefinitions() []openai.AssistantTool {
	fn := func(def openai.FunctionDefinition) openai.AssistantTool {
		d := def
		return openai.AssistantTool{
			Type:     openai.AssistantToolTypeFunction,
			Function: &d,
		}
	}
	obj := func(required []string, props map[string]any) map[string]any {
		schema := map[string]any{
			"type":       "object",
			"properties": props,
		}
		if len(required) > 0 {
			schema["required"] = required
		}
		return schema
	}
	str := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}

	return []openai.AssistantTool{
		fn(openai.FunctionDefinition{
			Name:        ToolGetTodayJobs,
			Description: "List the inspector's jobs scheduled for today.",
			Parameters:  obj(nil, map[string]any{}),
		}),
		fn(openai.FunctionDefinition{
			Name:        ToolConfirmJob,
			Description: "Confirm the selected job and load its context into the session.",
			Parameters: obj([]string{"workOrderId"}, map[string]any{
				"workOrderId": str("Database identifier of the work order, not the displayed number."),
			}),
		}),
		fn(openai.FunctionDefinition{
			Name:        ToolStartJob,
			Description: "Mark the confirmed job as started.",
			Parameters: obj([]string{"workOrderId"}, map[string]any{
				"workOrderId": str("Database identifier of the work order."),
			}),
		}),
		fn(openai.FunctionDefinition{
			Name:        ToolGetJobLocations,
			Description: "List the checklist locations of a job with completion status.",
			Parameters: obj([]string{"workOrderId"}, map[string]any{
				"workOrderId": str("Database identifier of the work order."),
			}),
		}),
		fn(openai.FunctionDefinition{
			Name:        ToolGetTasksForLocation,
			Description: "List the tasks of one location. Sets the session's current location.",
			Parameters: obj([]string{"workOrderId", "location"}, map[string]any{
				"workOrderId": str("Database identifier of the work order."),
				"location":    str("Location name exactly as listed, e.g. \"Kitchen\"."),
			}),
		}),
		fn(openai.FunctionDefinition{
			Name:        ToolCompleteTask,
			Description: "Complete one task, or every task in the current location when taskId is \"complete_all_tasks\".",
			Parameters: obj([]string{"taskId", "workOrderId"}, map[string]any{
				"taskId":      str("Database identifier of the task, or the literal \"complete_all_tasks\"."),
				"workOrderId": str("Database identifier of the work order."),
				"location":    str("Ignored for complete_all_tasks; the session's current location is authoritative."),
				"notes":       str("Optional inspector notes."),
			}),
		}),
		fn(openai.FunctionDefinition{
			Name:        ToolUpdateJobStatus,
			Description: "Update the work order status (scheduled, started, completed).",
			Parameters: obj([]string{"workOrderId", "status"}, map[string]any{
				"workOrderId": str("Database identifier of the work order."),
				"status":      str("New status."),
			}),
		}),
		fn(openai.FunctionDefinition{
			Name:        ToolUpdateJobDetails,
			Description: "Update a single field of the work order.",
			Parameters: obj([]string{"workOrderId", "field", "value"}, map[string]any{
				"workOrderId": str("Database identifier of the work order."),
				"field":       str("Field name, e.g. \"remarks\"."),
				"value":       str("New value."),
			}),
		}),
		fn(openai.FunctionDefinition{
			Name:        ToolIdentifyInspector,
			Description: "Identify or register the inspector for this conversation.",
			Parameters: obj(nil, map[string]any{
				"phone": str("Registered phone number if the inspector provided one."),
				"name":  str("Inspector name if provided."),
			}),
		}),
		fn(openai.FunctionDefinition{
			Name:        ToolGetTaskMedia,
			Description: "List photos and videos already attached to a task.",
			Parameters: obj([]string{"taskId"}, map[string]any{
				"taskId": str("Database identifier of the task."),
			}),
		}),
		fn(openai.FunctionDefinition{
			Name:        ToolGetJobProgress,
			Description: "Get the completion rollup for a job.",
			Parameters: obj([]string{"workOrderId"}, map[string]any{
				"workOrderId": str("Database identifier of the work order."),
			}),
		}),
	}
}
