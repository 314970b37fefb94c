package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/ebops/deploybot/workflow"
)

var jenkinsBuildColumns = []string{
	"build_id", "workflow_id", "job_name", "build_number", "queue_id",
	"job_url", "build_status", "build_parameters", "build_start_time",
	"build_end_time", "build_duration", "notified", "notification_time",
	"created_at",
}

// CreateJenkinsBuild starts tracking one directly-triggered Jenkins build.
func (s *Store) CreateJenkinsBuild(ctx context.Context, workflowID, jobName string, buildNumber, queueID *int64, params workflow.BuildParameters, status workflow.BuildStatus) (*workflow.JenkinsBuild, error) {
	now := s.now()
	unix, human := now.Unix(), workflow.Timestamp(now)
	if status == "" {
		status = workflow.BuildStatusBuilding
	}
	build := &workflow.JenkinsBuild{
		BuildID:         workflow.NewJenkinsBuildID(now),
		WorkflowID:      workflowID,
		JobName:         jobName,
		BuildNumber:     buildNumber,
		QueueID:         queueID,
		BuildStatus:     status,
		BuildParameters: params,
		BuildStartTime:  &unix,
		CreatedAt:       human,
	}

	query, args, err := sq.Insert("jenkins_builds").
		Columns("build_id", "workflow_id", "job_name", "build_number", "queue_id",
			"build_status", "build_parameters", "build_start_time", "created_at").
		Values(build.BuildID, build.WorkflowID, build.JobName, build.BuildNumber,
			build.QueueID, string(build.BuildStatus), build.BuildParameters, unix, human).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build jenkins build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("insert jenkins build: %w", err)
	}
	return build, nil
}

// GetJenkinsBuild retrieves a tracked Jenkins build by ID.
func (s *Store) GetJenkinsBuild(ctx context.Context, buildID string) (*workflow.JenkinsBuild, error) {
	query, args, err := sq.Select(jenkinsBuildColumns...).
		From("jenkins_builds").
		Where(sq.Eq{"build_id": buildID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build jenkins build select: %w", err)
	}

	var build workflow.JenkinsBuild
	if err := s.db.GetContext(ctx, &build, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get jenkins build: %w", err)
	}
	return &build, nil
}

// GetJenkinsBuildsByWorkflow returns every tracked Jenkins build for a
// workflow.
func (s *Store) GetJenkinsBuildsByWorkflow(ctx context.Context, workflowID string) ([]*workflow.JenkinsBuild, error) {
	query, args, err := sq.Select(jenkinsBuildColumns...).
		From("jenkins_builds").
		Where(sq.Eq{"workflow_id": workflowID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build jenkins builds select: %w", err)
	}

	var builds []*workflow.JenkinsBuild
	if err := s.db.SelectContext(ctx, &builds, query, args...); err != nil {
		return nil, fmt.Errorf("list jenkins builds: %w", err)
	}
	return builds, nil
}

// UpdateJenkinsBuild records a poll observation. A terminal status stamps
// the end time; duration and URL are only written when non-nil.
func (s *Store) UpdateJenkinsBuild(ctx context.Context, buildID string, status workflow.BuildStatus, duration *int64, jobURL *string) error {
	unix, _ := s.timestamps()
	builder := sq.Update("jenkins_builds").
		Set("build_status", string(status))
	if status.Terminal() {
		builder = builder.Set("build_end_time", unix)
	}
	if duration != nil {
		builder = builder.Set("build_duration", *duration)
	}
	if jobURL != nil {
		builder = builder.Set("job_url", *jobURL)
	}

	query, args, err := builder.Where(sq.Eq{"build_id": buildID}).ToSql()
	if err != nil {
		return fmt.Errorf("build jenkins build update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update jenkins build: %w", err)
	}
	return nil
}

// MarkJenkinsBuildStarted promotes a queued build to BUILDING once its start
// was observed, recording the build number the queue item resolved to.
func (s *Store) MarkJenkinsBuildStarted(ctx context.Context, buildID string, buildNumber int64, jobURL *string) error {
	builder := sq.Update("jenkins_builds").
		Set("build_status", string(workflow.BuildStatusBuilding)).
		Set("build_number", buildNumber)
	if jobURL != nil {
		builder = builder.Set("job_url", *jobURL)
	}

	query, args, err := builder.Where(sq.Eq{"build_id": buildID}).ToSql()
	if err != nil {
		return fmt.Errorf("build started update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark jenkins build started: %w", err)
	}
	return nil
}

// MarkJenkinsBuildNotified records that the completion notice went out.
func (s *Store) MarkJenkinsBuildNotified(ctx context.Context, buildID string) error {
	unix, _ := s.timestamps()
	query, args, err := sq.Update("jenkins_builds").
		Set("notified", 1).
		Set("notification_time", unix).
		Where(sq.Eq{"build_id": buildID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build notified update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark jenkins build notified: %w", err)
	}
	return nil
}
