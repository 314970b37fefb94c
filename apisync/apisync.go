// Package apisync pushes terminal workflows to an optional external HTTP
// endpoint. Sync is best-effort: any failure is logged and swallowed, the
// approval flow never waits on or rolls back for it.
package apisync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ebops/deploybot/config"
	"github.com/ebops/deploybot/metrics"
	"github.com/ebops/deploybot/workflow"
)

// Store is the single write the syncer performs after a successful push.
type Store interface {
	MarkSyncedToAPI(ctx context.Context, id string) error
}

// payload is the sync body. Field names are the downstream's contract.
type payload struct {
	WorkflowID      string  `json:"workflow_id"`
	UserID          int64   `json:"user_id"`
	Username        string  `json:"username"`
	SubmissionData  string  `json:"submission_data"`
	Status          string  `json:"status"`
	ApproverID      *int64  `json:"approver_id"`
	ApprovalTime    *string `json:"approval_time"`
	ApprovalComment *string `json:"approval_comment"`
}

// Syncer posts decided workflows to the configured endpoint.
type Syncer struct {
	cfg    *config.App
	store  Store
	logger *slog.Logger

	// newClient builds the HTTP client per push so credential and proxy
	// edits take effect without a restart. Tests swap it out.
	newClient func(ctx context.Context, timeout time.Duration) (*http.Client, error)
}

// New builds a Syncer reading its endpoint settings through cfg.
func New(cfg *config.App, store Store, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Syncer{
		cfg:    cfg,
		store:  store,
		logger: logger.With("component", "apisync"),
	}
	s.newClient = func(ctx context.Context, timeout time.Duration) (*http.Client, error) {
		return config.NewHTTPClient(config.ClientSettings{
			Proxy:   cfg.GlobalProxy(ctx),
			Timeout: timeout,
		})
	}
	return s
}

// Push sends the workflow to the external API and marks it synced on a 2xx
// response. It reports whether the workflow is now synced; a disabled
// endpoint or any failure returns false.
func (s *Syncer) Push(ctx context.Context, wf *workflow.Workflow) bool {
	settings := s.cfg.API(ctx)
	if !settings.Enabled() {
		s.logger.Debug("api sync disabled, skipping", "workflow_id", wf.ID)
		metrics.APISyncs.WithLabelValues("disabled").Inc()
		return false
	}

	if err := s.post(ctx, settings, wf); err != nil {
		s.logger.Error("api sync failed", "workflow_id", wf.ID, "error", err)
		metrics.APISyncs.WithLabelValues("error").Inc()
		return false
	}

	if err := s.store.MarkSyncedToAPI(ctx, wf.ID); err != nil {
		s.logger.Error("mark workflow synced failed", "workflow_id", wf.ID, "error", err)
		metrics.APISyncs.WithLabelValues("mark_failed").Inc()
		return false
	}

	s.logger.Info("workflow synced to api", "workflow_id", wf.ID, "status", wf.Status)
	metrics.APISyncs.WithLabelValues("ok").Inc()
	return true
}

func (s *Syncer) post(ctx context.Context, settings config.APISettings, wf *workflow.Workflow) error {
	url := strings.TrimRight(settings.BaseURL, "/") + "/" + strings.TrimLeft(settings.Endpoint, "/")

	body, err := json.Marshal(payload{
		WorkflowID:      wf.ID,
		UserID:          wf.UserID,
		Username:        wf.Username,
		SubmissionData:  wf.SubmissionData,
		Status:          wf.Status.String(),
		ApproverID:      wf.ApproverID,
		ApprovalTime:    wf.ApprovalTime,
		ApprovalComment: wf.ApprovalComment,
	})
	if err != nil {
		return fmt.Errorf("marshal sync payload: %w", err)
	}

	client, err := s.newClient(ctx, settings.Timeout)
	if err != nil {
		return fmt.Errorf("build sync client: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if settings.Token != "" {
		req.Header.Set("Authorization", "Bearer "+settings.Token)
	}

	start := time.Now()
	resp, err := client.Do(req)
	metrics.DownstreamDuration.WithLabelValues("api", "sync").Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("post workflow: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sync endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
