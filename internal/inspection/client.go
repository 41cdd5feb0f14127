package inspection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the inspection domain service over its REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a domain client. baseURL is trimmed of trailing slashes.
func NewClient(log *slog.Logger, baseURL, token string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With(slog.String("component", "inspection_client")),
	}
}

func (c *Client) GetTodayJobsForInspector(ctx context.Context, inspectorID string) ([]WorkOrder, error) {
	var out []WorkOrder
	err := c.doJSON(ctx, http.MethodGet, "/inspectors/"+url.PathEscape(inspectorID)+"/jobs/today", nil, &out)
	return out, err
}

func (c *Client) GetWorkOrderByID(ctx context.Context, jobID string) (WorkOrder, error) {
	var out WorkOrder
	err := c.doJSON(ctx, http.MethodGet, "/work-orders/"+url.PathEscape(jobID), nil, &out)
	return out, err
}

func (c *Client) UpdateWorkOrderStatus(ctx context.Context, jobID, status string) error {
	body := map[string]string{"status": status}
	return c.doJSON(ctx, http.MethodPatch, "/work-orders/"+url.PathEscape(jobID)+"/status", body, nil)
}

func (c *Client) UpdateWorkOrderDetails(ctx context.Context, jobID, field, value string) error {
	body := map[string]string{"field": field, "value": value}
	return c.doJSON(ctx, http.MethodPatch, "/work-orders/"+url.PathEscape(jobID), body, nil)
}

func (c *Client) GetLocationsWithCompletionStatus(ctx context.Context, jobID string) ([]LocationStatus, error) {
	var out []LocationStatus
	err := c.doJSON(ctx, http.MethodGet, "/work-orders/"+url.PathEscape(jobID)+"/locations", nil, &out)
	return out, err
}

func (c *Client) GetTasksByLocation(ctx context.Context, jobID, locationName string) ([]Task, error) {
	var out []Task
	path := "/work-orders/" + url.PathEscape(jobID) + "/locations/" + url.PathEscape(locationName) + "/tasks"
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) UpdateTaskStatus(ctx context.Context, taskID, status, notes string) error {
	body := map[string]string{"status": status}
	if strings.TrimSpace(notes) != "" {
		body["notes"] = notes
	}
	return c.doJSON(ctx, http.MethodPatch, "/tasks/"+url.PathEscape(taskID), body, nil)
}

func (c *Client) CompleteAllTasksForLocation(ctx context.Context, jobID, locationName, notes string) error {
	body := map[string]string{"location": locationName}
	if strings.TrimSpace(notes) != "" {
		body["notes"] = notes
	}
	return c.doJSON(ctx, http.MethodPost, "/work-orders/"+url.PathEscape(jobID)+"/complete-location", body, nil)
}

func (c *Client) GetWorkOrderProgress(ctx context.Context, jobID string) (Progress, error) {
	var out Progress
	err := c.doJSON(ctx, http.MethodGet, "/work-orders/"+url.PathEscape(jobID)+"/progress", nil, &out)
	return out, err
}

func (c *Client) GetInspectorByPhone(ctx context.Context, phone string) (Inspector, error) {
	var out Inspector
	err := c.doJSON(ctx, http.MethodGet, "/inspectors/by-phone/"+url.PathEscape(phone), nil, &out)
	return out, err
}

func (c *Client) GetTaskMedia(ctx context.Context, taskID string) (TaskMedia, error) {
	var out TaskMedia
	err := c.doJSON(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID)+"/media", nil, &out)
	return out, err
}

func (c *Client) GetContractChecklistItemIDByLocation(ctx context.Context, jobID, locationName string) (string, error) {
	var out struct {
		ChecklistItemID string `json:"checklistItemId"`
	}
	path := "/work-orders/" + url.PathEscape(jobID) + "/locations/" + url.PathEscape(locationName) + "/checklist-item"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out.ChecklistItemID, nil
}

func (c *Client) AppendChecklistItemMedia(ctx context.Context, checklistItemID, kind, mediaURL string) error {
	body := map[string]string{"kind": kind, "url": mediaURL}
	return c.doJSON(ctx, http.MethodPost, "/checklist-items/"+url.PathEscape(checklistItemID)+"/media", body, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("inspection service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("inspection service error",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("body_prefix", truncate(string(respBody), 300)))
		return fmt.Errorf("inspection service: status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("inspection service: parse response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
