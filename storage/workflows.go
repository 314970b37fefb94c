package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/ebops/deploybot/workflow"
)

var workflowColumns = []string{
	"workflow_id", "timestamp", "user_id", "username", "submission_data",
	"project", "template_type", "status", "approver_id", "approver_username",
	"approval_time", "approval_comment", "created_at", "synced_to_api",
	"group_messages",
}

// CreateWorkflow inserts a new pending workflow and returns it.
func (s *Store) CreateWorkflow(ctx context.Context, userID int64, username, submissionData, project string, templateType workflow.TemplateType) (*workflow.Workflow, error) {
	if !templateType.IsValid() {
		templateType = workflow.TemplateDefault
	}
	now := s.now()
	wf := &workflow.Workflow{
		ID:             workflow.NewID(now),
		Timestamp:      now.Unix(),
		UserID:         userID,
		Username:       username,
		SubmissionData: submissionData,
		Project:        project,
		TemplateType:   templateType,
		Status:         workflow.StatusPending,
		CreatedAt:      workflow.Timestamp(now),
		GroupMessages:  workflow.GroupMessages{},
	}

	query, args, err := sq.Insert("workflows").
		Columns("workflow_id", "timestamp", "user_id", "username", "submission_data",
			"project", "template_type", "status", "created_at").
		Values(wf.ID, wf.Timestamp, wf.UserID, wf.Username, wf.SubmissionData,
			wf.Project, string(wf.TemplateType), string(wf.Status), wf.CreatedAt).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build workflow insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("insert workflow: %w", err)
	}
	return wf, nil
}

// GetWorkflow retrieves a workflow by ID.
func (s *Store) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	query, args, err := sq.Select(workflowColumns...).
		From("workflows").
		Where(sq.Eq{"workflow_id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build workflow select: %w", err)
	}

	var wf workflow.Workflow
	if err := s.db.GetContext(ctx, &wf, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return &wf, nil
}

// GetWorkflowByMessage retrieves the workflow whose approval message was
// posted as the given message in the given group.
func (s *Store) GetWorkflowByMessage(ctx context.Context, groupID int64, messageID int) (*workflow.Workflow, error) {
	cols := make([]string, len(workflowColumns))
	for i, c := range workflowColumns {
		cols[i] = "w." + c
	}
	query, args, err := sq.Select(cols...).
		From("workflows w").
		Join("workflow_messages wm ON w.workflow_id = wm.workflow_id").
		Where(sq.Eq{"wm.group_id": groupID, "wm.message_id": messageID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build workflow message select: %w", err)
	}

	var wf workflow.Workflow
	if err := s.db.GetContext(ctx, &wf, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get workflow by message: %w", err)
	}
	return &wf, nil
}

// TransitionStatus conditionally moves a workflow between statuses,
// recording the approval in the same statement. The WHERE clause on the
// current status makes concurrent decisions resolve to exactly one winner;
// it returns false when no row matched.
func (s *Store) TransitionStatus(ctx context.Context, id string, from, to workflow.Status, approval workflow.Approval) (bool, error) {
	query, args, err := sq.Update("workflows").
		Set("status", string(to)).
		Set("approver_id", approval.ApproverID).
		Set("approver_username", approval.ApproverUsername).
		Set("approval_time", approval.Time).
		Set("approval_comment", approval.Comment).
		Where(sq.Eq{"workflow_id": id, "status": string(from)}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build status transition: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition rows affected: %w", err)
	}
	return affected == 1, nil
}

// AttachGroupMessages stores the per-group root message map on the workflow
// and records one lookup row per (group, message) pair.
func (s *Store) AttachGroupMessages(ctx context.Context, id string, messages workflow.GroupMessages) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attach messages: %w", err)
	}
	defer tx.Rollback()

	query, args, err := sq.Update("workflows").
		Set("group_messages", messages).
		Where(sq.Eq{"workflow_id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build group messages update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update group messages: %w", err)
	}

	for groupID, messageID := range messages {
		query, args, err := sq.Insert("workflow_messages").
			Options("OR REPLACE").
			Columns("message_id", "group_id", "workflow_id").
			Values(messageID, groupID, id).
			ToSql()
		if err != nil {
			return fmt.Errorf("build message insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert workflow message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attach messages: %w", err)
	}
	return nil
}

// MarkSyncedToAPI flags the workflow as pushed to the external API.
func (s *Store) MarkSyncedToAPI(ctx context.Context, id string) error {
	query, args, err := sq.Update("workflows").
		Set("synced_to_api", 1).
		Where(sq.Eq{"workflow_id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build synced update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

// DeleteWorkflow removes a workflow; child rows cascade.
func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	query, args, err := sq.Delete("workflows").Where(sq.Eq{"workflow_id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build workflow delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	return nil
}

// ListRecentWorkflows returns the newest workflows, most recent first.
func (s *Store) ListRecentWorkflows(ctx context.Context, limit int) ([]*workflow.Workflow, error) {
	if limit <= 0 {
		limit = 10
	}
	query, args, err := sq.Select(workflowColumns...).
		From("workflows").
		OrderBy("timestamp DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent select: %w", err)
	}

	var workflows []*workflow.Workflow
	if err := s.db.SelectContext(ctx, &workflows, query, args...); err != nil {
		return nil, fmt.Errorf("list recent workflows: %w", err)
	}
	return workflows, nil
}

// ListWorkflows returns the newest workflows filtered by status, most
// recent first. An empty status returns workflows in any state.
func (s *Store) ListWorkflows(ctx context.Context, status workflow.Status, limit int) ([]*workflow.Workflow, error) {
	if limit <= 0 {
		limit = 10
	}
	builder := sq.Select(workflowColumns...).
		From("workflows").
		OrderBy("timestamp DESC").
		Limit(uint64(limit))
	if status != "" {
		builder = builder.Where(sq.Eq{"status": string(status)})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build workflow select: %w", err)
	}

	var workflows []*workflow.Workflow
	if err := s.db.SelectContext(ctx, &workflows, query, args...); err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	return workflows, nil
}

// CountWorkflowsByStatus returns the number of workflows per status.
func (s *Store) CountWorkflowsByStatus(ctx context.Context) (map[workflow.Status]int, error) {
	rows, err := s.db.QueryxContext(ctx, `SELECT status, COUNT(*) AS n FROM workflows GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count workflows: %w", err)
	}
	defer rows.Close()

	counts := make(map[workflow.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[workflow.Status(status)] = n
	}
	return counts, rows.Err()
}
