package jenkins

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/ebops/deploybot/config"
	"github.com/ebops/deploybot/metrics"
	"github.com/ebops/deploybot/submission"
	"github.com/ebops/deploybot/workflow"
)

// A triggered build is expected to leave the queue within a minute.
const (
	startInterval    = 2 * time.Second
	maxStartAttempts = 30
)

// Store is the persistence surface the fan-out needs.
type Store interface {
	CreateJenkinsBuild(ctx context.Context, workflowID, jobName string, buildNumber, queueID *int64, params workflow.BuildParameters, status workflow.BuildStatus) (*workflow.JenkinsBuild, error)
	MarkJenkinsBuildStarted(ctx context.Context, buildID string, buildNumber int64, jobURL *string) error
	UpdateJenkinsBuild(ctx context.Context, buildID string, status workflow.BuildStatus, duration *int64, jobURL *string) error
	GetJenkinsBuild(ctx context.Context, buildID string) (*workflow.JenkinsBuild, error)
}

// Notifier reply-threads build outcomes into the originating chat groups.
type Notifier interface {
	NotifyJenkinsBuild(ctx context.Context, build *workflow.JenkinsBuild) error
}

// OptionsLoader provides the current project options document.
type OptionsLoader interface {
	Load(ctx context.Context) (*config.Options, error)
}

// Orchestrator triggers one Jenkins build per requested service when a
// workflow is approved, waits for each build to leave the queue, and polls
// it to an end state. Trigger concurrency is capped per project.
type Orchestrator struct {
	store    Store
	notifier Notifier
	options  OptionsLoader
	cfg      *config.App
	limiter  *Limiter
	logger   *slog.Logger

	startInterval time.Duration
	startAttempts int
	pollInterval  time.Duration
	pollAttempts  int

	newClient func(settings config.JenkinsSettings, proxy *config.ProxySettings) (*Client, error)
}

// NewOrchestrator wires the build fan-out against live configuration. A new
// client is built per run so credential and proxy edits apply without a
// restart; the limiter lives for the process so its caps hold across runs.
func NewOrchestrator(store Store, notifier Notifier, options OptionsLoader, cfg *config.App, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:         store,
		notifier:      notifier,
		options:       options,
		cfg:           cfg,
		limiter:       NewLimiter(),
		logger:        logger.With("component", "jenkins"),
		startInterval: startInterval,
		startAttempts: maxStartAttempts,
		pollInterval:  pollInterval,
		pollAttempts:  maxPollAttempts,
		newClient: func(settings config.JenkinsSettings, proxy *config.ProxySettings) (*Client, error) {
			return NewClient(settings, proxy, logger)
		},
	}
}

// Run executes the build fan-out for an approved workflow. Failures are
// logged and recorded on the build rows; the approval itself is never
// affected.
func (o *Orchestrator) Run(ctx context.Context, wf *workflow.Workflow) {
	fields := submission.Parse(wf.SubmissionData)
	if fields.Project == "" || fields.Environment == "" || len(fields.Services) == 0 {
		o.logger.Warn("submission incomplete, no builds to trigger", "workflow_id", wf.ID)
		return
	}

	project := o.project(ctx, fields.Project)
	settings := o.cfg.JenkinsFor(ctx, project)
	if !settings.Valid() {
		o.logger.Info("jenkins disabled or incomplete, skipping builds",
			"workflow_id", wf.ID, "project", fields.Project)
		return
	}

	if err := o.fanOut(ctx, wf, fields, project, settings); err != nil {
		o.logger.Error("jenkins build fan-out failed", "workflow_id", wf.ID, "error", err)
	}
}

func (o *Orchestrator) fanOut(ctx context.Context, wf *workflow.Workflow, fields submission.Fields, project *config.Project, settings config.JenkinsSettings) error {
	if len(fields.Services) != len(fields.Hashes) {
		return fmt.Errorf("service count %d does not match hash count %d", len(fields.Services), len(fields.Hashes))
	}
	if project == nil {
		return fmt.Errorf("project %q not in options", fields.Project)
	}
	envKey, _, ok := project.Services.MatchEnv(fields.Environment)
	if !ok {
		return fmt.Errorf("environment %q not in project %s services", fields.Environment, fields.Project)
	}

	client, err := o.newClient(settings, config.ResolveProxy(project, o.cfg.GlobalProxy(ctx)))
	if err != nil {
		return err
	}

	for i, service := range fields.Services {
		params := workflow.BuildParameters{
			"action_type": "gray",
			"gitBranch":   fields.Branch,
		}
		if fields.Hashes[i] != "" {
			params["check_commitID"] = fields.Hashes[i]
		}
		jobName := envKey + "/" + service
		if err := o.triggerOne(ctx, wf, client, settings, fields.Project, jobName, params); err != nil {
			// A hard trigger failure aborts the remaining services.
			return fmt.Errorf("trigger %s: %w", jobName, err)
		}
	}
	return nil
}

// triggerOne runs the trigger sequence for one job under the project's
// concurrency slot: capture the next build number, trigger, wait for the
// build to start, then hand the tracked row to a poller.
func (o *Orchestrator) triggerOne(ctx context.Context, wf *workflow.Workflow, client *Client, settings config.JenkinsSettings, project, jobName string, params workflow.BuildParameters) error {
	if err := o.limiter.Acquire(ctx, project, settings.MaxConcurrent); err != nil {
		return fmt.Errorf("acquire build slot: %w", err)
	}
	defer o.limiter.Release(project)

	info, err := client.GetJobInfo(ctx, jobName)
	if err != nil {
		metrics.JenkinsTriggers.WithLabelValues("error").Inc()
		return err
	}
	queueID, err := client.TriggerBuild(ctx, jobName, params)
	if err != nil {
		metrics.JenkinsTriggers.WithLabelValues("error").Inc()
		return err
	}

	var queueRef *int64
	if queueID > 0 {
		queueRef = &queueID
	}
	build, err := o.store.CreateJenkinsBuild(ctx, wf.ID, jobName, nil, queueRef, params, workflow.BuildStatusQueued)
	if err != nil {
		metrics.JenkinsTriggers.WithLabelValues("error").Inc()
		return fmt.Errorf("create build row: %w", err)
	}
	o.logger.Info("jenkins build triggered",
		"workflow_id", wf.ID, "job", jobName, "queue_id", queueID, "build_id", build.BuildID)

	number, jobURL, err := o.waitForStart(ctx, client, jobName, queueID, info.NextBuildNumber)
	if err != nil {
		metrics.JenkinsTriggers.WithLabelValues("timeout").Inc()
		o.logger.Warn("jenkins build never started",
			"workflow_id", wf.ID, "job", jobName, "queue_id", queueID, "error", err)
		// A start timeout settles only this build; the remaining services
		// still get their triggers.
		o.settle(ctx, build.BuildID, workflow.BuildStatusTimeout)
		return nil
	}

	var urlRef *string
	if jobURL != "" {
		urlRef = &jobURL
	}
	if err := o.store.MarkJenkinsBuildStarted(ctx, build.BuildID, number, urlRef); err != nil {
		o.logger.Error("record build start", "build_id", build.BuildID, "error", err)
	}
	metrics.JenkinsTriggers.WithLabelValues("ok").Inc()
	o.logger.Info("jenkins build started",
		"workflow_id", wf.ID, "job", jobName, "build_number", number)

	metrics.Go(o.logger, "jenkins_poller", func() {
		o.pollBuild(ctx, wf, client, build.BuildID, jobName, number)
	})
	return nil
}

// waitForStart polls until the triggered build leaves the queue. With a
// queue id the queue item is authoritative; without one the predicted build
// number is probed until Jenkins knows it.
func (o *Orchestrator) waitForStart(ctx context.Context, client *Client, jobName string, queueID, nextNumber int64) (int64, string, error) {
	var number int64
	var jobURL string
	err := retry.Do(
		func() error {
			if queueID > 0 {
				exec, err := client.QueueExecutable(ctx, queueID)
				if err != nil {
					return err
				}
				if exec == nil {
					return fmt.Errorf("build %s still queued", jobName)
				}
				number, jobURL = exec.Number, exec.URL
				return nil
			}
			info, err := client.GetBuildInfo(ctx, jobName, nextNumber)
			if err != nil {
				return fmt.Errorf("build %s not started: %w", jobName, err)
			}
			number, jobURL = nextNumber, info.URL
			return nil
		},
		retry.Attempts(uint(o.startAttempts)),
		retry.Delay(o.startInterval),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return 0, "", err
	}
	return number, jobURL, nil
}

// settle writes a final state on a build row and sends its notice.
func (o *Orchestrator) settle(ctx context.Context, buildID string, status workflow.BuildStatus) {
	if err := o.store.UpdateJenkinsBuild(ctx, buildID, status, nil, nil); err != nil {
		o.logger.Error("record build state", "build_id", buildID, "status", status, "error", err)
	}
	metrics.JenkinsBuildsFinished.WithLabelValues(string(status)).Inc()
	o.notify(ctx, buildID)
}

func (o *Orchestrator) notify(ctx context.Context, buildID string) {
	build, err := o.store.GetJenkinsBuild(ctx, buildID)
	if err != nil {
		o.logger.Error("load build for notice", "build_id", buildID, "error", err)
		return
	}
	if err := o.notifier.NotifyJenkinsBuild(ctx, build); err != nil {
		o.logger.Error("send build notice", "build_id", buildID, "error", err)
	}
}

func (o *Orchestrator) project(ctx context.Context, name string) *config.Project {
	opts, err := o.options.Load(ctx)
	if err != nil {
		o.logger.Warn("load project options", "error", err)
		return nil
	}
	return opts.Project(name)
}
