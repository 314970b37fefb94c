// Package sso submits release tickets to the SSO workflow system and tracks
// the builds they spawn until each settles.
package sso

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ebops/deploybot/config"
	"github.com/ebops/deploybot/metrics"
)

// Per-call deadlines mirror the remote system's responsiveness: ticket
// creation walks a workflow engine and is slow, reads are not.
const (
	readTimeout   = 30 * time.Second
	submitTimeout = 60 * time.Second
)

// Client talks to the SSO release system. Every request carries the
// Auth-token and Authorization credential headers.
type Client struct {
	settings config.SSOSettings
	http     *http.Client
	logger   *slog.Logger
}

// NewClient builds an SSO client. The proxy is resolved by the caller so
// per-project proxies apply. Deadlines are set per call, not on the client.
func NewClient(settings config.SSOSettings, proxy *config.ProxySettings, logger *slog.Logger) (*Client, error) {
	httpClient, err := config.NewHTTPClient(config.ClientSettings{Proxy: proxy})
	if err != nil {
		return nil, fmt.Errorf("build sso http client: %w", err)
	}
	return &Client{
		settings: settings,
		http:     httpClient,
		logger:   logger.With("component", "sso"),
	}, nil
}

// JobIDs resolves the CI job id for each service. The remote lists every
// job registered for the project and environment; each service takes the
// first job whose name contains the service name, preserving input order.
// Services without a match produce no entry, so callers must compare the
// result count against the request.
func (c *Client) JobIDs(ctx context.Context, project, env string, services []string) ([]json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	query := url.Values{"env": {env}, "projects": {project}}
	raw, err := c.get(ctx, "/api/publish3/publish/jenkinsJob/queryOaSameJob", query, "query_jobs")
	if err != nil {
		return nil, err
	}

	var out struct {
		Data []struct {
			JobID   json.RawMessage `json:"jobId"`
			JobName string          `json:"jobName"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("sso query_jobs: decode response: %w", err)
	}

	jobIDs := make([]json.RawMessage, 0, len(services))
	for _, service := range services {
		for _, item := range out.Data {
			if strings.Contains(item.JobName, service) {
				jobIDs = append(jobIDs, item.JobID)
				break
			}
		}
	}
	c.logger.Info("resolved job ids", "project", project, "env", env,
		"services", len(services), "matched", len(jobIDs))
	return jobIDs, nil
}

// SubmitResult carries the remote acknowledgement of a ticket.
type SubmitResult struct {
	// ProcessInstanceID is the remote workflow handle polled for release ids.
	ProcessInstanceID string
	// Response is the raw acknowledgement body, stored verbatim.
	Response string
}

// SubmitTicket creates the release ticket. The remote API requires the
// detail field as a JSON string rather than a JSON array, so the ticket is
// rewrapped before posting.
func (c *Client) SubmitTicket(ctx context.Context, ticket *Ticket) (*SubmitResult, error) {
	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	detail, err := json.Marshal(ticket.Detail)
	if err != nil {
		return nil, fmt.Errorf("marshal ticket detail: %w", err)
	}
	body, err := json.Marshal(struct {
		Detail         string `json:"detail"`
		DraftID        string `json:"draftId"`
		EndType        string `json:"endType"`
		ProcessStatus  string `json:"processStatus"`
		PublishVersion string `json:"publishVersion"`
		Title          string `json:"title"`
		Type           string `json:"type"`
		UserID         string `json:"userId"`
	}{
		Detail:         string(detail),
		DraftID:        ticket.DraftID,
		EndType:        ticket.EndType,
		ProcessStatus:  ticket.ProcessStatus,
		PublishVersion: ticket.PublishVersion,
		Title:          ticket.Title,
		Type:           ticket.Type,
		UserID:         ticket.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal ticket: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint("/api/flow/task/startnew/dcAutoReleaseProcess"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build submit request: %w", err)
	}

	raw, err := c.do(req, "submit_ticket")
	if err != nil {
		return nil, err
	}

	var out struct {
		Object struct {
			ProcessInstanceID json.RawMessage `json:"processInstanceId"`
		} `json:"object"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("sso submit_ticket: decode response: %w", err)
	}
	pid := rawString(out.Object.ProcessInstanceID)
	if pid == "" {
		return nil, fmt.Errorf("sso submit_ticket: response carries no processInstanceId: %s", snippet(raw))
	}
	c.logger.Info("ticket accepted", "title", ticket.Title, "process_instance_id", pid)
	return &SubmitResult{ProcessInstanceID: pid, Response: string(raw)}, nil
}

// ReleaseIDs lists the release builds spawned by an accepted ticket. An
// empty list is not an error; some tickets spawn none. The misspelled
// "hisitory" path segment is what the remote actually serves.
func (c *Client) ReleaseIDs(ctx context.Context, processInstanceID string) ([]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	query := url.Values{"proId": {processInstanceID}}
	raw, err := c.get(ctx, "/api/flow/publish/hisitory/getReleaseId", query, "release_ids")
	if err != nil {
		return nil, err
	}

	var out struct {
		Object []json.RawMessage `json:"object"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("sso release_ids: decode response: %w", err)
	}

	ids := make([]int64, 0, len(out.Object))
	for _, item := range out.Object {
		s := rawString(item)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("sso release_ids: parse id %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// BuildDetail is one poll observation of a release build.
type BuildDetail struct {
	JobName       string `json:"jobName"`
	PublishStatus string `json:"publishStatus"`
	// Raw is the data object as returned, stored verbatim on the build row.
	Raw string `json:"-"`
}

// GetBuildDetail reads the current state of one release build.
func (c *Client) GetBuildDetail(ctx context.Context, releaseID int64) (*BuildDetail, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	query := url.Values{"id": {strconv.FormatInt(releaseID, 10)}}
	raw, err := c.get(ctx, "/api/flow/publish/hisitory/buildDetail", query, "build_detail")
	if err != nil {
		return nil, err
	}

	var out struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("sso build_detail: decode response: %w", err)
	}

	var detail BuildDetail
	if len(out.Data) > 0 {
		if err := json.Unmarshal(out.Data, &detail); err != nil {
			return nil, fmt.Errorf("sso build_detail: decode data: %w", err)
		}
		detail.Raw = string(out.Data)
	}
	return &detail, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, operation string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint(path)+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", operation, err)
	}
	return c.do(req, operation)
}

func (c *Client) do(req *http.Request, operation string) ([]byte, error) {
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("Auth-token", c.settings.AuthToken)
	req.Header.Set("Authorization", c.settings.Authorization)

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.DownstreamDuration.WithLabelValues("sso", operation).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("sso %s: %w", operation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sso %s: read response: %w", operation, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sso %s: status %d: %s", operation, resp.StatusCode, snippet(body))
	}
	return body, nil
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.settings.URL, "/") + path
}

// rawString flattens a raw JSON scalar to its text form: strings are
// unquoted, numbers keep their literal digits, null and absent values
// become empty.
func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	out := strings.TrimSpace(string(raw))
	if out == "null" {
		return ""
	}
	return out
}

func snippet(body []byte) string {
	const max = 512
	if len(body) > max {
		body = body[:max]
	}
	return strings.TrimSpace(string(body))
}
