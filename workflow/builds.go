package workflow

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// SubmitStatus tracks the lifecycle of a release ticket submission.
type SubmitStatus string

const (
	// SubmitPending means the ticket row exists but the remote call has
	// not completed yet.
	SubmitPending SubmitStatus = "pending"
	// SubmitSuccess means the remote system accepted the ticket.
	SubmitSuccess SubmitStatus = "success"
	// SubmitFailed means the submission errored; the failure never rolls
	// back the approval that triggered it.
	SubmitFailed SubmitStatus = "failed"
)

// String returns the string representation of the submit status.
func (s SubmitStatus) String() string {
	return string(s)
}

// BuildStatus is the state of a CI build tracked by a poller.
type BuildStatus string

const (
	// BuildStatusQueued means the trigger was accepted but the build has not
	// been observed starting yet. Only Jenkins builds pass through this state.
	BuildStatusQueued BuildStatus = "QUEUED"
	// BuildStatusBuilding means the build is still running.
	BuildStatusBuilding BuildStatus = "BUILDING"
	// BuildStatusSuccess means the build finished successfully.
	BuildStatusSuccess BuildStatus = "SUCCESS"
	// BuildStatusFailure means the build finished with errors.
	BuildStatusFailure BuildStatus = "FAILURE"
	// BuildStatusAborted means the build was cancelled.
	BuildStatusAborted BuildStatus = "ABORTED"
	// BuildStatusUnstable means the build completed with test failures.
	BuildStatusUnstable BuildStatus = "UNSTABLE"
	// BuildStatusTimeout means polling exhausted its attempts before the
	// build reached a terminal state.
	BuildStatusTimeout BuildStatus = "TIMEOUT"
	// BuildStatusError means polling itself failed.
	BuildStatusError BuildStatus = "ERROR"
)

// String returns the string representation of the build status.
func (b BuildStatus) String() string {
	return string(b)
}

// Terminal reports whether the remote build reached a final verdict.
func (b BuildStatus) Terminal() bool {
	switch b {
	case BuildStatusSuccess, BuildStatusFailure, BuildStatusAborted, BuildStatusUnstable:
		return true
	default:
		return false
	}
}

// BuildParameters is the parameter set a build was triggered with, stored
// as a JSON object.
type BuildParameters map[string]string

// Value implements driver.Valuer, serializing the map to JSON.
func (p BuildParameters) Value() (driver.Value, error) {
	if len(p) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(map[string]string(p))
	if err != nil {
		return nil, fmt.Errorf("marshal build parameters: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner, accepting NULL, TEXT, or BLOB columns.
func (p *BuildParameters) Scan(src any) error {
	if src == nil {
		*p = BuildParameters{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("scan build parameters: unsupported type %T", src)
	}
	if len(data) == 0 {
		*p = BuildParameters{}
		return nil
	}
	out := make(map[string]string)
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("unmarshal build parameters: %w", err)
	}
	*p = BuildParameters(out)
	return nil
}

// SSOSubmission is one release ticket submitted to the SSO system for an
// approved workflow. The submission ID reuses the workflow ID, so each
// workflow carries at most one ticket.
type SSOSubmission struct {
	// SubmissionID identifies the submission (equal to the workflow ID).
	SubmissionID string `db:"submission_id" json:"submission_id"`
	// WorkflowID is the approved workflow this ticket belongs to.
	WorkflowID string `db:"workflow_id" json:"workflow_id"`
	// ProcessInstanceID is the remote ticket ID returned on success.
	ProcessInstanceID *string `db:"process_instance_id" json:"process_instance_id,omitempty"`
	// OrderData is the full ticket payload as submitted, as JSON.
	OrderData string `db:"sso_order_data" json:"sso_order_data"`
	// SubmitStatus is pending, success, or failed.
	SubmitStatus SubmitStatus `db:"submit_status" json:"submit_status"`
	// SubmitTime is the unix time of the submission attempt.
	SubmitTime int64 `db:"submit_time" json:"submit_time"`
	// SubmitResponse is the raw remote response, as JSON.
	SubmitResponse *string `db:"submit_response" json:"submit_response,omitempty"`
	// ErrorMessage holds the failure reason when SubmitStatus is failed.
	ErrorMessage *string `db:"error_message" json:"error_message,omitempty"`
	// CreatedAt is the human-readable creation time.
	CreatedAt string `db:"created_at" json:"created_at"`
	// UpdatedAt is the human-readable last update time.
	UpdatedAt string `db:"updated_at" json:"updated_at"`
}

// SSOBuild is one release build spawned by an accepted SSO ticket, tracked
// until it reaches a terminal state or polling gives up.
type SSOBuild struct {
	// BuildID identifies the tracked build (BUILD-<unix>-XXXXXXXX).
	BuildID string `db:"build_id" json:"build_id"`
	// SubmissionID is the ticket that spawned the build.
	SubmissionID string `db:"submission_id" json:"submission_id"`
	// WorkflowID is the originating workflow.
	WorkflowID string `db:"workflow_id" json:"workflow_id"`
	// ReleaseID is the remote release identifier being polled.
	ReleaseID int64 `db:"release_id" json:"release_id"`
	// JobName is the CI job executing the release, filled in from the
	// first poll response.
	JobName string `db:"job_name" json:"job_name"`
	// ServiceName is the deployed service, when known.
	ServiceName *string `db:"service_name" json:"service_name,omitempty"`
	// JobID is the remote job identifier, when known.
	JobID *string `db:"job_id" json:"job_id,omitempty"`
	// BuildStatus is the last observed build state.
	BuildStatus BuildStatus `db:"build_status" json:"build_status"`
	// BuildStartTime is the unix time polling began.
	BuildStartTime *int64 `db:"build_start_time" json:"build_start_time,omitempty"`
	// BuildEndTime is the unix time a terminal state was recorded.
	BuildEndTime *int64 `db:"build_end_time" json:"build_end_time,omitempty"`
	// BuildDetail is the last raw poll response, as JSON.
	BuildDetail *string `db:"build_detail" json:"build_detail,omitempty"`
	// Notified marks that the completion notice went out.
	Notified bool `db:"notified" json:"notified"`
	// NotificationTime is the unix time the notice was sent.
	NotificationTime *int64 `db:"notification_time" json:"notification_time,omitempty"`
	// CreatedAt is the human-readable creation time.
	CreatedAt string `db:"created_at" json:"created_at"`
	// UpdatedAt is the human-readable last update time.
	UpdatedAt string `db:"updated_at" json:"updated_at"`
}

// JenkinsBuild is one directly-triggered Jenkins build, tracked until it
// reaches a terminal result or polling gives up.
type JenkinsBuild struct {
	// BuildID identifies the tracked build (JBUILD-<unix>-XXXXXXXX).
	BuildID string `db:"build_id" json:"build_id"`
	// WorkflowID is the originating workflow.
	WorkflowID string `db:"workflow_id" json:"workflow_id"`
	// JobName is the Jenkins job path (<env-key>/<service>).
	JobName string `db:"job_name" json:"job_name"`
	// BuildNumber is the Jenkins build number once the build started.
	BuildNumber *int64 `db:"build_number" json:"build_number,omitempty"`
	// QueueID is the Jenkins queue item the trigger returned.
	QueueID *int64 `db:"queue_id" json:"queue_id,omitempty"`
	// JobURL is the build page URL, when known.
	JobURL *string `db:"job_url" json:"job_url,omitempty"`
	// BuildStatus is the last observed build state.
	BuildStatus BuildStatus `db:"build_status" json:"build_status"`
	// BuildParameters is the parameter set the build was triggered with.
	BuildParameters BuildParameters `db:"build_parameters" json:"build_parameters,omitempty"`
	// BuildStartTime is the unix time the build was triggered.
	BuildStartTime *int64 `db:"build_start_time" json:"build_start_time,omitempty"`
	// BuildEndTime is the unix time a terminal state was recorded.
	BuildEndTime *int64 `db:"build_end_time" json:"build_end_time,omitempty"`
	// BuildDuration is the remote-reported duration in milliseconds.
	BuildDuration *int64 `db:"build_duration" json:"build_duration,omitempty"`
	// Notified marks that the completion notice went out.
	Notified bool `db:"notified" json:"notified"`
	// NotificationTime is the unix time the notice was sent.
	NotificationTime *int64 `db:"notification_time" json:"notification_time,omitempty"`
	// CreatedAt is the human-readable creation time.
	CreatedAt string `db:"created_at" json:"created_at"`
}
