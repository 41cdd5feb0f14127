package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inspectra/fieldbot/internal/inspection"
	"github.com/inspectra/fieldbot/internal/session"
	"github.com/inspectra/fieldbot/internal/storage"
)

// Service runs the download → store → link pipeline.
type Service struct {
	store      storage.ObjectStore
	domain     inspection.Service
	httpClient *http.Client
	namespace  string
	logger     *slog.Logger
}

// NewService creates the pipeline. namespace is the top-level key prefix.
func NewService(log *slog.Logger, store storage.ObjectStore, domain inspection.Service, namespace string) *Service {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(namespace) == "" {
		namespace = "fieldbot"
	}
	return &Service{
		store:      store,
		domain:     domain,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		namespace:  namespace,
		logger:     log.With(slog.String("service", "media")),
	}
}

// SetHTTPClient overrides the download client. Used by tests.
func (s *Service) SetHTTPClient(c *http.Client) {
	if c != nil {
		s.httpClient = c
	}
}

// Ingest stores one attachment for the session and returns the user-facing
// confirmation. Business preconditions (no active job) come back as a reply
// with a nil error; transport failures come back as errors the caller turns
// into a retry message. The domain record is only touched after both the
// download and the upload succeeded.
func (s *Service) Ingest(ctx context.Context, sess session.Session, att Attachment) (string, error) {
	meta := sess.Metadata
	if meta.WorkOrderID == "" {
		return "Please start a job first before sending photos or videos. Say \"show my jobs\" to begin.", nil
	}

	location, checklistItemID := s.resolveLocation(ctx, meta)

	data, contentType, err := s.download(ctx, att)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}

	key := s.buildKey(meta, location, att)
	publicURL, err := s.store.Put(ctx, storage.PutInput{
		Key:         key,
		Reader:      bytes.NewReader(data),
		Size:        int64(len(data)),
		ContentType: contentType,
		PublicRead:  true,
		Tags: map[string]string{
			"work-order": meta.WorkOrderID,
			"location":   location,
			"media-kind": att.Kind,
			"source":     "whatsapp",
			"uploaded":   time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}

	if location != GeneralLocation {
		if err := s.link(ctx, meta.WorkOrderID, location, checklistItemID, att.Kind, publicURL); err != nil {
			// stored but unlinked; tell the inspector where it went
			s.logger.Warn("media stored but not linked",
				slog.String("key", key),
				slog.Any("error", err))
			return fmt.Sprintf("Your %s was saved, but I couldn't attach it to %s. It is stored under the job's general files.", att.Kind, location), nil
		}
	}

	s.logger.Info("media ingested",
		slog.String("work_order", meta.WorkOrderID),
		slog.String("location", location),
		slog.String("kind", att.Kind),
		slog.String("key", key))

	if location == GeneralLocation {
		return fmt.Sprintf("Your %s was saved to the job's general files. Select a location first if you want it attached to a checklist item.", att.Kind), nil
	}
	return fmt.Sprintf("Your %s was saved and attached to %s.", att.Kind, location), nil
}

// resolveLocation picks the checklist location media is filed under:
// session metadata first, else the first incomplete location, else the last
// location, else the general fallback. Matching against checklist names is
// case-insensitive; the canonical name is returned.
func (s *Service) resolveLocation(ctx context.Context, meta session.Metadata) (string, string) {
	locations, err := s.domain.GetLocationsWithCompletionStatus(ctx, meta.WorkOrderID)
	if err != nil {
		s.logger.Warn("location list unavailable", slog.Any("error", err))
		locations = nil
	}

	if meta.CurrentLocation != "" {
		for _, loc := range locations {
			if strings.EqualFold(loc.Name, meta.CurrentLocation) {
				return loc.Name, loc.ChecklistItemID
			}
		}
		// metadata names a location the checklist doesn't know; keep the
		// inspector's word for the key but nothing can be linked
		if len(locations) == 0 {
			return meta.CurrentLocation, ""
		}
	}
	for _, loc := range locations {
		if !loc.Completed {
			return loc.Name, loc.ChecklistItemID
		}
	}
	if len(locations) > 0 {
		last := locations[len(locations)-1]
		return last.Name, last.ChecklistItemID
	}
	return GeneralLocation, ""
}

func (s *Service) download(ctx context.Context, att Attachment) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > MaxDownloadBytes {
		return nil, "", fmt.Errorf("attachment exceeds %d bytes", MaxDownloadBytes)
	}

	contentType := att.Mimetype
	if contentType == "" {
		contentType = resp.Header.Get("Content-Type")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

func (s *Service) buildKey(meta session.Metadata, location string, att Attachment) string {
	folder := "photos"
	if att.Kind == inspection.MediaKindVideo {
		folder = "videos"
	}
	property := Slug(meta.CustomerName)
	if meta.PostalCode != "" {
		property += "-" + meta.PostalCode
	}
	return fmt.Sprintf("%s/data/%s/%s/%s/%s%s",
		s.namespace, property, Slug(location), folder, uuid.NewString(), extension(att))
}

func (s *Service) link(ctx context.Context, workOrderID, location, checklistItemID, kind, publicURL string) error {
	itemID := checklistItemID
	if itemID == "" {
		resolved, err := s.domain.GetContractChecklistItemIDByLocation(ctx, workOrderID, location)
		if err != nil {
			return fmt.Errorf("%w: resolve item for %q: %v", ErrLink, location, err)
		}
		itemID = resolved
	}
	if err := s.domain.AppendChecklistItemMedia(ctx, itemID, kind, publicURL); err != nil {
		return fmt.Errorf("%w: %v", ErrLink, err)
	}
	return nil
}
