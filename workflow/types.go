// Package workflow defines the deployment approval domain model: workflow
// records, their status lifecycle, and the build records produced once an
// approved workflow is handed to the release systems.
package workflow

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
)

// Status represents the approval state of a workflow.
type Status string

const (
	// StatusPending means the workflow is waiting for a reviewer decision.
	StatusPending Status = "pending"
	// StatusApproved means a reviewer accepted the workflow.
	StatusApproved Status = "approved"
	// StatusRejected means a reviewer declined the workflow.
	StatusRejected Status = "rejected"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid reports whether the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransitionTo reports whether moving from s to target is allowed.
// Only pending workflows may move, and only to a terminal state.
func (s Status) CanTransitionTo(target Status) bool {
	return s == StatusPending && target.IsTerminal()
}

// Label returns the display label rendered into chat messages.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "待审批"
	case StatusApproved:
		return "已通过"
	case StatusRejected:
		return "已拒绝"
	default:
		return "未知"
	}
}

// TemplateType selects the submission layout and the message templates
// used when a workflow is posted and resolved.
type TemplateType string

const (
	// TemplateDefault is the full deployment request layout.
	TemplateDefault TemplateType = "default"
	// TemplateAddressOnly is the reduced layout for projects that only
	// register link node addresses.
	TemplateAddressOnly TemplateType = "address_only"
)

// String returns the string representation of the template type.
func (t TemplateType) String() string {
	return string(t)
}

// IsValid reports whether the template type is a known value.
func (t TemplateType) IsValid() bool {
	return t == TemplateDefault || t == TemplateAddressOnly
}

// Action is a reviewer decision carried in a callback payload.
type Action string

const (
	// ActionApprove accepts a pending workflow.
	ActionApprove Action = "approve"
	// ActionReject declines a pending workflow.
	ActionReject Action = "reject"
)

// IsValid reports whether the action is a known value.
func (a Action) IsValid() bool {
	return a == ActionApprove || a == ActionReject
}

// GroupMessages maps a group chat ID to the root approval message posted
// there. It is stored as a JSON object whose keys are decimal chat IDs.
type GroupMessages map[int64]int

// Value implements driver.Valuer, serializing the map to JSON.
func (g GroupMessages) Value() (driver.Value, error) {
	if len(g) == 0 {
		return nil, nil
	}
	obj := make(map[string]int, len(g))
	for chatID, messageID := range g {
		obj[strconv.FormatInt(chatID, 10)] = messageID
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("marshal group messages: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner, accepting NULL, TEXT, or BLOB columns.
func (g *GroupMessages) Scan(src any) error {
	if src == nil {
		*g = GroupMessages{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("scan group messages: unsupported type %T", src)
	}
	if len(data) == 0 {
		*g = GroupMessages{}
		return nil
	}
	obj := make(map[string]int)
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("unmarshal group messages: %w", err)
	}
	out := make(GroupMessages, len(obj))
	for key, messageID := range obj {
		chatID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return fmt.Errorf("parse group chat id %q: %w", key, err)
		}
		out[chatID] = messageID
	}
	*g = out
	return nil
}

// Workflow is one deployment approval request.
type Workflow struct {
	// ID uniquely identifies the workflow (WF-YYYYMMDD-XXXXXXXX).
	ID string `db:"workflow_id" json:"workflow_id"`
	// Timestamp is the creation time as a unix timestamp, used for
	// time-ordered queries and retention.
	Timestamp int64 `db:"timestamp" json:"timestamp"`
	// UserID is the submitting chat user.
	UserID int64 `db:"user_id" json:"user_id"`
	// Username is the submitter's display name at submission time.
	Username string `db:"username" json:"username"`
	// SubmissionData is the canonical submission text.
	SubmissionData string `db:"submission_data" json:"submission_data"`
	// Project is the project the submission belongs to.
	Project string `db:"project" json:"project,omitempty"`
	// TemplateType records which form layout produced the submission.
	TemplateType TemplateType `db:"template_type" json:"template_type"`
	// Status is the current approval state.
	Status Status `db:"status" json:"status"`
	// ApproverID is the reviewer's chat user ID, set on transition.
	ApproverID *int64 `db:"approver_id" json:"approver_id,omitempty"`
	// ApproverUsername is the reviewer's display name, set on transition.
	ApproverUsername *string `db:"approver_username" json:"approver_username,omitempty"`
	// ApprovalTime is the human-readable decision time.
	ApprovalTime *string `db:"approval_time" json:"approval_time,omitempty"`
	// ApprovalComment is the decision note ("已通过"/"已拒绝" by default).
	ApprovalComment *string `db:"approval_comment" json:"approval_comment,omitempty"`
	// CreatedAt is the human-readable creation time.
	CreatedAt string `db:"created_at" json:"created_at"`
	// SyncedToAPI marks that the workflow was pushed to the external API.
	SyncedToAPI bool `db:"synced_to_api" json:"synced_to_api"`
	// GroupMessages holds the root approval message per group chat.
	GroupMessages GroupMessages `db:"group_messages" json:"group_messages,omitempty"`
}

// Approval carries the reviewer identity recorded on a status transition.
type Approval struct {
	// ApproverID is the reviewer's chat user ID.
	ApproverID int64
	// ApproverUsername is the reviewer's display name.
	ApproverUsername string
	// Time is the human-readable decision time.
	Time string
	// Comment is the decision note.
	Comment string
}
