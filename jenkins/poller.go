package jenkins

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/ebops/deploybot/metrics"
	"github.com/ebops/deploybot/workflow"
)

// Builds are polled every 10 seconds for at most 60 attempts, about ten
// minutes end to end.
const (
	pollInterval    = 10 * time.Second
	maxPollAttempts = 60
)

// pollBuild tracks one build to a terminal result. Every observation is
// written through so operators can follow progress in the database; the
// completion notice goes out once the build settles. Transient read errors
// keep the poll going.
func (o *Orchestrator) pollBuild(ctx context.Context, wf *workflow.Workflow, client *Client, buildID, jobName string, number int64) {
	logger := o.logger.With("workflow_id", wf.ID, "job", jobName, "build_number", number)

	var final workflow.BuildStatus
	attempt := 0
	err := retry.Do(
		func() error {
			attempt++
			info, err := client.GetBuildInfo(ctx, jobName, number)
			if err != nil {
				logger.Warn("poll build", "attempt", attempt, "error", err)
				return err
			}

			status := workflow.BuildStatusBuilding
			if !info.Building && info.Result != "" {
				status = workflow.BuildStatus(info.Result)
			}
			var duration *int64
			if status.Terminal() {
				duration = &info.Duration
			}
			var jobURL *string
			if info.URL != "" {
				jobURL = &info.URL
			}
			if err := o.store.UpdateJenkinsBuild(ctx, buildID, status, duration, jobURL); err != nil {
				logger.Error("record build state", "error", err)
			}

			if status.Terminal() {
				final = status
				return nil
			}
			return fmt.Errorf("build %s#%d still %s", jobName, number, status)
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
		if err := o.store.UpdateJenkinsBuild(writeCtx, buildID, final, nil, nil); err != nil {
			logger.Error("record build state", "error", err)
		}
		ctx = writeCtx
	}

	metrics.JenkinsBuildsFinished.WithLabelValues(string(final)).Inc()
	logger.Info("jenkins build settled", "status", final, "attempts", attempt)

	o.notify(ctx, buildID)
}
