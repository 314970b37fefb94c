package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ebops/deploybot/config"
	"github.com/ebops/deploybot/metrics"
	"github.com/ebops/deploybot/submission"
	"github.com/ebops/deploybot/workflow"
)

// Store is the persistence surface the orchestrator needs.
type Store interface {
	CreateSSOSubmission(ctx context.Context, workflowID, orderData string) (*workflow.SSOSubmission, error)
	UpdateSSOSubmission(ctx context.Context, submissionID string, status workflow.SubmitStatus, processInstanceID, response, errMsg *string) error
	CreateSSOBuild(ctx context.Context, submissionID, workflowID string, releaseID int64, jobName string, serviceName, jobID *string) (*workflow.SSOBuild, error)
	UpdateSSOBuild(ctx context.Context, buildID string, status workflow.BuildStatus, jobName string, detail *string) error
	GetSSOBuild(ctx context.Context, buildID string) (*workflow.SSOBuild, error)
}

// Notifier posts ticket progress into the originating chat groups.
type Notifier interface {
	NotifySSOSubmitted(ctx context.Context, wf *workflow.Workflow, processInstanceID, submitTime string, services []string)
	NotifySSOSubmitFailed(ctx context.Context, wf *workflow.Workflow, errMsg string)
	NotifySSOBuild(ctx context.Context, build *workflow.SSOBuild) error
}

// OptionsLoader provides the current project options document.
type OptionsLoader interface {
	Load(ctx context.Context) (*config.Options, error)
}

// Orchestrator drives the release ticket flow for approved workflows:
// resolve job ids, compose and submit the ticket, then poll every release
// build the ticket spawned until it settles.
type Orchestrator struct {
	store    Store
	notifier Notifier
	options  OptionsLoader
	cfg      *config.App
	logger   *slog.Logger

	pollInterval time.Duration
	pollAttempts int

	newClient func(settings config.SSOSettings, proxy *config.ProxySettings) (*Client, error)
	now       func() time.Time
}

// NewOrchestrator wires the ticket flow against live configuration. A new
// client is built per run so credential and proxy edits apply without a
// restart.
func NewOrchestrator(store Store, notifier Notifier, options OptionsLoader, cfg *config.App, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:        store,
		notifier:     notifier,
		options:      options,
		cfg:          cfg,
		logger:       logger.With("component", "sso"),
		pollInterval: pollInterval,
		pollAttempts: maxPollAttempts,
		newClient: func(settings config.SSOSettings, proxy *config.ProxySettings) (*Client, error) {
			return NewClient(settings, proxy, logger)
		},
		now: time.Now,
	}
}

// Run executes the ticket flow for an approved workflow. Any failure marks
// the submission failed and notifies the groups; the workflow itself stays
// approved regardless.
func (o *Orchestrator) Run(ctx context.Context, wf *workflow.Workflow) {
	settings := o.cfg.SSO(ctx)
	if !settings.Valid() {
		o.logger.Info("sso disabled or incomplete, skipping ticket", "workflow_id", wf.ID)
		return
	}

	if err := o.submit(ctx, wf, settings); err != nil {
		o.logger.Error("sso ticket flow failed", "workflow_id", wf.ID, "error", err)
		o.markFailed(ctx, wf, err)
	}
}

func (o *Orchestrator) submit(ctx context.Context, wf *workflow.Workflow, settings config.SSOSettings) error {
	fields := submission.Parse(wf.SubmissionData)
	if fields.Project == "" {
		return fmt.Errorf("submission carries no project")
	}
	if fields.Environment == "" {
		return fmt.Errorf("submission carries no environment")
	}
	if len(fields.Services) == 0 {
		return fmt.Errorf("submission carries no services")
	}
	if len(fields.Services) != len(fields.Hashes) {
		return fmt.Errorf("service count %d does not match hash count %d", len(fields.Services), len(fields.Hashes))
	}

	client, err := o.newClient(settings, o.proxyFor(ctx, fields.Project))
	if err != nil {
		return err
	}

	jobIDs, err := client.JobIDs(ctx, fields.Project, fields.Environment, fields.Services)
	if err != nil {
		return fmt.Errorf("resolve job ids: %w", err)
	}
	if len(jobIDs) != len(fields.Services) {
		return fmt.Errorf("resolved %d job ids for %d services", len(jobIDs), len(fields.Services))
	}

	approver := ""
	if wf.ApproverUsername != nil {
		approver = *wf.ApproverUsername
	}
	ticket, err := BuildTicket(TicketRequest{
		Project:      fields.Project,
		Environment:  fields.Environment,
		Services:     fields.Services,
		Hashes:       fields.Hashes,
		JobIDs:       jobIDs,
		ApproverMail: approver,
	}, o.now())
	if err != nil {
		return err
	}
	orderData, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("marshal ticket: %w", err)
	}

	sub, err := o.store.CreateSSOSubmission(ctx, wf.ID, string(orderData))
	if err != nil {
		return fmt.Errorf("create submission row: %w", err)
	}

	result, err := client.SubmitTicket(ctx, ticket)
	if err != nil {
		return fmt.Errorf("submit ticket: %w", err)
	}
	pid := result.ProcessInstanceID
	if err := o.store.UpdateSSOSubmission(ctx, sub.SubmissionID, workflow.SubmitSuccess, &pid, &result.Response, nil); err != nil {
		return fmt.Errorf("record submission success: %w", err)
	}
	metrics.SSOSubmissions.WithLabelValues("success").Inc()
	o.logger.Info("sso ticket accepted", "workflow_id", wf.ID, "process_instance_id", pid)

	// Once the remote accepted the ticket the submission is a success; a
	// release id fetch failure only costs the build monitors.
	releaseIDs, err := client.ReleaseIDs(ctx, pid)
	if err != nil {
		o.logger.Error("fetch release ids, builds will not be monitored",
			"workflow_id", wf.ID, "process_instance_id", pid, "error", err)
		releaseIDs = nil
	}
	if len(releaseIDs) == 0 {
		o.logger.Warn("ticket spawned no release builds", "workflow_id", wf.ID, "process_instance_id", pid)
	}
	for _, releaseID := range releaseIDs {
		id := releaseID
		metrics.Go(o.logger, "sso_poller", func() {
			o.pollBuild(ctx, client, wf, sub.SubmissionID, id)
		})
	}

	submitTime := time.Unix(sub.SubmitTime, 0).Format(workflow.TimeLayout)
	o.notifier.NotifySSOSubmitted(ctx, wf, pid, submitTime, fields.Services)
	return nil
}

// markFailed records the failure on the submission row. The row may not
// exist yet when the flow failed before composing the ticket; the update
// is a no-op then.
func (o *Orchestrator) markFailed(ctx context.Context, wf *workflow.Workflow, cause error) {
	metrics.SSOSubmissions.WithLabelValues("failed").Inc()
	msg := cause.Error()
	if err := o.store.UpdateSSOSubmission(ctx, wf.ID, workflow.SubmitFailed, nil, nil, &msg); err != nil {
		o.logger.Error("record submission failure", "workflow_id", wf.ID, "error", err)
	}
	o.notifier.NotifySSOSubmitFailed(ctx, wf, msg)
}

func (o *Orchestrator) proxyFor(ctx context.Context, project string) *config.ProxySettings {
	global := o.cfg.GlobalProxy(ctx)
	opts, err := o.options.Load(ctx)
	if err != nil {
		o.logger.Warn("load project options for proxy", "error", err)
		return config.ResolveProxy(nil, global)
	}
	return config.ResolveProxy(opts.Project(project), global)
}
