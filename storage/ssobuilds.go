package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/ebops/deploybot/workflow"
)

var ssoBuildColumns = []string{
	"build_id", "submission_id", "workflow_id", "release_id", "job_name",
	"service_name", "job_id", "build_status", "build_start_time",
	"build_end_time", "build_detail", "notified", "notification_time",
	"created_at", "updated_at",
}

// CreateSSOBuild starts tracking one release build. The job name is usually
// unknown at creation and filled in from the first poll response.
func (s *Store) CreateSSOBuild(ctx context.Context, submissionID, workflowID string, releaseID int64, jobName string, serviceName, jobID *string) (*workflow.SSOBuild, error) {
	now := s.now()
	unix, human := now.Unix(), workflow.Timestamp(now)
	build := &workflow.SSOBuild{
		BuildID:        workflow.NewBuildID(now),
		SubmissionID:   submissionID,
		WorkflowID:     workflowID,
		ReleaseID:      releaseID,
		JobName:        jobName,
		ServiceName:    serviceName,
		JobID:          jobID,
		BuildStatus:    workflow.BuildStatusBuilding,
		BuildStartTime: &unix,
		CreatedAt:      human,
		UpdatedAt:      human,
	}

	query, args, err := sq.Insert("sso_build_status").
		Columns("build_id", "submission_id", "workflow_id", "release_id", "job_name",
			"service_name", "job_id", "build_status", "build_start_time",
			"created_at", "updated_at").
		Values(build.BuildID, build.SubmissionID, build.WorkflowID, build.ReleaseID,
			build.JobName, build.ServiceName, build.JobID, string(build.BuildStatus),
			unix, human, human).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sso build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("insert sso build: %w", err)
	}
	return build, nil
}

// UpdateSSOBuild records a poll observation. A terminal status stamps the
// end time; job name and raw detail are only written when non-empty.
func (s *Store) UpdateSSOBuild(ctx context.Context, buildID string, status workflow.BuildStatus, jobName string, detail *string) error {
	unix, human := s.timestamps()
	builder := sq.Update("sso_build_status").
		Set("build_status", string(status)).
		Set("updated_at", human)
	if status == workflow.BuildStatusSuccess || status == workflow.BuildStatusFailure || status == workflow.BuildStatusAborted {
		builder = builder.Set("build_end_time", unix)
	}
	if jobName != "" {
		builder = builder.Set("job_name", jobName)
	}
	if detail != nil {
		builder = builder.Set("build_detail", *detail)
	}

	query, args, err := builder.Where(sq.Eq{"build_id": buildID}).ToSql()
	if err != nil {
		return fmt.Errorf("build sso build update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update sso build: %w", err)
	}
	return nil
}

// GetSSOBuild retrieves a tracked release build by ID.
func (s *Store) GetSSOBuild(ctx context.Context, buildID string) (*workflow.SSOBuild, error) {
	query, args, err := sq.Select(ssoBuildColumns...).
		From("sso_build_status").
		Where(sq.Eq{"build_id": buildID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sso build select: %w", err)
	}

	var build workflow.SSOBuild
	if err := s.db.GetContext(ctx, &build, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get sso build: %w", err)
	}
	return &build, nil
}

// GetSSOBuildsByWorkflow returns every tracked release build for a workflow.
func (s *Store) GetSSOBuildsByWorkflow(ctx context.Context, workflowID string) ([]*workflow.SSOBuild, error) {
	query, args, err := sq.Select(ssoBuildColumns...).
		From("sso_build_status").
		Where(sq.Eq{"workflow_id": workflowID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sso builds select: %w", err)
	}

	var builds []*workflow.SSOBuild
	if err := s.db.SelectContext(ctx, &builds, query, args...); err != nil {
		return nil, fmt.Errorf("list sso builds: %w", err)
	}
	return builds, nil
}

// MarkSSOBuildNotified records that the completion notice went out.
func (s *Store) MarkSSOBuildNotified(ctx context.Context, buildID string) error {
	unix, human := s.timestamps()
	query, args, err := sq.Update("sso_build_status").
		Set("notified", 1).
		Set("notification_time", unix).
		Set("updated_at", human).
		Where(sq.Eq{"build_id": buildID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build notified update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark sso build notified: %w", err)
	}
	return nil
}
