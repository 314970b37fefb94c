package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/ebops/deploybot/workflow"
)

var submissionColumns = []string{
	"submission_id", "workflow_id", "process_instance_id", "sso_order_data",
	"submit_status", "submit_time", "submit_response", "error_message",
	"created_at", "updated_at",
}

// CreateSSOSubmission records a release ticket about to be submitted. The
// submission ID reuses the workflow ID, so re-submitting the same workflow
// is rejected by the primary key.
func (s *Store) CreateSSOSubmission(ctx context.Context, workflowID, orderData string) (*workflow.SSOSubmission, error) {
	unix, human := s.timestamps()
	sub := &workflow.SSOSubmission{
		SubmissionID: workflowID,
		WorkflowID:   workflowID,
		OrderData:    orderData,
		SubmitStatus: workflow.SubmitPending,
		SubmitTime:   unix,
		CreatedAt:    human,
		UpdatedAt:    human,
	}

	query, args, err := sq.Insert("sso_submissions").
		Columns("submission_id", "workflow_id", "sso_order_data", "submit_status",
			"submit_time", "created_at", "updated_at").
		Values(sub.SubmissionID, sub.WorkflowID, sub.OrderData, string(sub.SubmitStatus),
			sub.SubmitTime, sub.CreatedAt, sub.UpdatedAt).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build submission insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("insert sso submission: %w", err)
	}
	return sub, nil
}

// GetSSOSubmissionByWorkflow returns the latest ticket for a workflow.
func (s *Store) GetSSOSubmissionByWorkflow(ctx context.Context, workflowID string) (*workflow.SSOSubmission, error) {
	query, args, err := sq.Select(submissionColumns...).
		From("sso_submissions").
		Where(sq.Eq{"workflow_id": workflowID}).
		OrderBy("submit_time DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build submission select: %w", err)
	}

	var sub workflow.SSOSubmission
	if err := s.db.GetContext(ctx, &sub, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get sso submission: %w", err)
	}
	return &sub, nil
}

// UpdateSSOSubmission records the outcome of a submission attempt. The
// process instance ID, raw response, and error message are only written
// when non-nil.
func (s *Store) UpdateSSOSubmission(ctx context.Context, submissionID string, status workflow.SubmitStatus, processInstanceID, response, errMsg *string) error {
	_, human := s.timestamps()
	builder := sq.Update("sso_submissions").
		Set("submit_status", string(status)).
		Set("updated_at", human)
	if processInstanceID != nil {
		builder = builder.Set("process_instance_id", *processInstanceID)
	}
	if response != nil {
		builder = builder.Set("submit_response", *response)
	}
	if errMsg != nil {
		builder = builder.Set("error_message", *errMsg)
	}

	query, args, err := builder.Where(sq.Eq{"submission_id": submissionID}).ToSql()
	if err != nil {
		return fmt.Errorf("build submission update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update sso submission: %w", err)
	}
	return nil
}
