// Package jenkins triggers parameterized CI builds for approved workflows
// and polls each build until it settles.
package jenkins

import (
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

// requestTimeout bounds every Jenkins call at the client. Deadlines beyond
// one request (wait-for-start, polling) are the orchestrator's business.
const requestTimeout = 30 * time.Second

// Client is a minimal Jenkins REST client covering what the build fan-out
// needs: job metadata, parameterized triggers, queue items, and build info.
type Client struct {
	settings config.JenkinsSettings
	http     *http.Client
	logger   *slog.Logger
}

// NewClient builds a Jenkins client. The proxy is resolved by the caller so
// per-project proxies apply.
func NewClient(settings config.JenkinsSettings, proxy *config.ProxySettings, logger *slog.Logger) (*Client, error) {
	httpClient, err := config.NewHTTPClient(config.ClientSettings{Proxy: proxy, Timeout: requestTimeout})
	if err != nil {
		return nil, fmt.Errorf("build jenkins http client: %w", err)
	}
	return &Client{
		settings: settings,
		http:     httpClient,
		logger:   logger.With("component", "jenkins"),
	}, nil
}

// JobInfo is the slice of job metadata the trigger flow reads.
type JobInfo struct {
	NextBuildNumber int64 `json:"nextBuildNumber"`
}

// GetJobInfo reads job metadata. The next build number is captured before
// triggering so the started build can be found even without a queue id.
func (c *Client) GetJobInfo(ctx context.Context, job string) (*JobInfo, error) {
	raw, err := c.get(ctx, jobPath(job)+"/api/json", "job_info")
	if err != nil {
		return nil, err
	}
	var info JobInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("jenkins job_info: decode response: %w", err)
	}
	return &info, nil
}

// TriggerBuild starts a parameterized build and returns the queue item id
// from the Location header, or 0 when Jenkins omits one.
func (c *Client) TriggerBuild(ctx context.Context, job string, params map[string]string) (int64, error) {
	endpoint := c.endpoint(jobPath(job) + "/buildWithParameters")
	if len(params) > 0 {
		values := url.Values{}
		for name, value := range params {
			values.Set(name, value)
		}
		endpoint += "?" + values.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("build trigger request: %w", err)
	}
	_, header, err := c.do(req, "trigger")
	if err != nil {
		return 0, err
	}

	queueID := queueItemID(header.Get("Location"))
	if queueID == 0 {
		c.logger.Debug("trigger response carried no queue item",
			"job", job, "location", header.Get("Location"))
	}
	return queueID, nil
}

// Executable is the build a queue item resolved to.
type Executable struct {
	Number int64  `json:"number"`
	URL    string `json:"url"`
}

// QueueExecutable reads a queue item, returning its executable once the
// build left the queue or nil while it is still waiting.
func (c *Client) QueueExecutable(ctx context.Context, queueID int64) (*Executable, error) {
	raw, err := c.get(ctx, "/queue/item/"+strconv.FormatInt(queueID, 10)+"/api/json", "queue_item")
	if err != nil {
		return nil, err
	}
	var out struct {
		Executable *Executable `json:"executable"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("jenkins queue_item: decode response: %w", err)
	}
	return out.Executable, nil
}

// BuildInfo is one observation of a running or finished build.
type BuildInfo struct {
	Building bool   `json:"building"`
	Result   string `json:"result"`
	// Duration is remote-reported milliseconds, zero until the build ends.
	Duration int64  `json:"duration"`
	URL      string `json:"url"`
}

// GetBuildInfo reads the state of one build. Jenkins answers 404 until the
// build actually exists, which callers treat as not started yet.
func (c *Client) GetBuildInfo(ctx context.Context, job string, number int64) (*BuildInfo, error) {
	raw, err := c.get(ctx, fmt.Sprintf("%s/%d/api/json", jobPath(job), number), "build_info")
	if err != nil {
		return nil, err
	}
	var info BuildInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("jenkins build_info: decode response: %w", err)
	}
	return &info, nil
}

func (c *Client) get(ctx context.Context, path, operation string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path), nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", operation, err)
	}
	body, _, err := c.do(req, operation)
	return body, err
}

func (c *Client) do(req *http.Request, operation string) ([]byte, http.Header, error) {
	// Token-only setups authenticate with the token as both basic auth
	// fields.
	user := c.settings.Username
	if user == "" {
		user = c.settings.APIToken
	}
	req.SetBasicAuth(user, c.settings.APIToken)

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.DownstreamDuration.WithLabelValues("jenkins", operation).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, nil, fmt.Errorf("jenkins %s: %w", operation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("jenkins %s: read response: %w", operation, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("jenkins %s: status %d: %s", operation, resp.StatusCode, snippet(body))
	}
	return body, resp.Header, nil
}

// endpoint joins the configured base URL with a path.
func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.settings.URL, "/") + path
}

// jobPath converts a job name like "uat/svc" into Jenkins URL form,
// "/job/uat/job/svc".
func jobPath(job string) string {
	var b strings.Builder
	for _, part := range strings.Split(job, "/") {
		if part == "" {
			continue
		}
		b.WriteString("/job/")
		b.WriteString(url.PathEscape(part))
	}
	return b.String()
}

// queueItemID extracts the trailing item id from a queue Location header.
func queueItemID(location string) int64 {
	if location == "" {
		return 0
	}
	parts := strings.Split(strings.TrimRight(location, "/"), "/")
	id, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// snippet truncates a response body for error messages.
func snippet(body []byte) string {
	const max = 512
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
