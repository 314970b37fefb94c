package sso

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/ebops/deploybot/metrics"
	"github.com/ebops/deploybot/workflow"
)

// Release builds are polled every 30 seconds for at most 20 attempts,
// about ten minutes end to end.
const (
	pollInterval    = 30 * time.Second
	maxPollAttempts = 20
)

// pollBuild tracks one release build to a terminal state. Every observation
// is written through so operators can follow progress in the database; the
// completion notice goes out once the build settles.
func (o *Orchestrator) pollBuild(ctx context.Context, client *Client, wf *workflow.Workflow, submissionID string, releaseID int64) {
	build, err := o.store.CreateSSOBuild(ctx, submissionID, wf.ID, releaseID, "", nil, nil)
	if err != nil {
		o.logger.Error("create release build row", "workflow_id", wf.ID, "release_id", releaseID, "error", err)
		return
	}
	logger := o.logger.With("workflow_id", wf.ID, "release_id", releaseID, "build_id", build.BuildID)

	var final workflow.BuildStatus
	attempt := 0
	err = retry.Do(
		func() error {
			attempt++
			detail, err := client.GetBuildDetail(ctx, releaseID)
			if err != nil {
				logger.Warn("poll release build", "attempt", attempt, "error", err)
				return err
			}

			status := workflow.BuildStatus(detail.PublishStatus)
			if status == "" {
				status = workflow.BuildStatusBuilding
			}
			if err := o.store.UpdateSSOBuild(ctx, build.BuildID, status, detail.JobName, &detail.Raw); err != nil {
				logger.Error("record release build state", "error", err)
			}

			switch status {
			case workflow.BuildStatusSuccess, workflow.BuildStatusFailure, workflow.BuildStatusAborted:
				final = status
				return nil
			}
			return fmt.Errorf("release %d still %s", releaseID, status)
		},
		retry.Attempts(uint(o.pollAttempts)),
		retry.Delay(o.pollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		final = workflow.BuildStatusTimeout
		writeCtx := ctx
		if ctx.Err() != nil {
			// Cancellation still gets a final state on the row; the
			// poller's context is gone so the write uses its own.
			final = workflow.BuildStatusError
			var cancel context.CancelFunc
			writeCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
		}
		if err := o.store.UpdateSSOBuild(writeCtx, build.BuildID, final, "", nil); err != nil {
			logger.Error("record release build state", "error", err)
		}
		ctx = writeCtx
	}

	metrics.SSOBuildsFinished.WithLabelValues(string(final)).Inc()
	logger.Info("release build settled", "status", final, "attempts", attempt)

	fresh, err := o.store.GetSSOBuild(ctx, build.BuildID)
	if err != nil {
		logger.Error("load release build for notice", "error", err)
		return
	}
	if err := o.notifier.NotifySSOBuild(ctx, fresh); err != nil {
		logger.Error("send release build notice", "error", err)
	}
}
