package workflow

import (
	"context"
	"fmt"
	"time"
)

// Default decision notes recorded when the reviewer supplies none.
const (
	DefaultApproveComment = "已通过"
	DefaultRejectComment  = "已拒绝"
)

// Store is the subset of workflow persistence the state machine needs.
type Store interface {
	// TransitionStatus conditionally moves a workflow from one status to
	// another, recording the approval in the same statement. It returns
	// false when the workflow is missing or no longer in the from status.
	TransitionStatus(ctx context.Context, id string, from, to Status, approval Approval) (bool, error)
	// MarkSyncedToAPI flags the workflow as pushed to the external API.
	MarkSyncedToAPI(ctx context.Context, id string) error
}

// Machine applies reviewer decisions to workflows. Transitions are guarded
// at the storage layer with a conditional update, so two reviewers racing
// on the same workflow resolve to exactly one winner.
type Machine struct {
	store Store
	now   func() time.Time
}

// NewMachine creates a state machine backed by the given store.
func NewMachine(store Store) *Machine {
	return &Machine{store: store, now: time.Now}
}

// Approve moves a pending workflow to approved. It returns false when the
// workflow is missing or was already decided.
func (m *Machine) Approve(ctx context.Context, id string, approverID int64, approverUsername, comment string) (bool, error) {
	if comment == "" {
		comment = DefaultApproveComment
	}
	return m.transition(ctx, id, StatusApproved, approverID, approverUsername, comment)
}

// Reject moves a pending workflow to rejected. It returns false when the
// workflow is missing or was already decided.
func (m *Machine) Reject(ctx context.Context, id string, approverID int64, approverUsername, comment string) (bool, error) {
	if comment == "" {
		comment = DefaultRejectComment
	}
	return m.transition(ctx, id, StatusRejected, approverID, approverUsername, comment)
}

// MarkSynced flags a workflow as synchronized to the external API.
func (m *Machine) MarkSynced(ctx context.Context, id string) error {
	return m.store.MarkSyncedToAPI(ctx, id)
}

func (m *Machine) transition(ctx context.Context, id string, to Status, approverID int64, approverUsername, comment string) (bool, error) {
	if !StatusPending.CanTransitionTo(to) {
		return false, fmt.Errorf("invalid target status: %s", to)
	}
	approval := Approval{
		ApproverID:       approverID,
		ApproverUsername: approverUsername,
		Time:             Timestamp(m.now()),
		Comment:          comment,
	}
	ok, err := m.store.TransitionStatus(ctx, id, StatusPending, to, approval)
	if err != nil {
		return false, fmt.Errorf("transition workflow %s to %s: %w", id, to, err)
	}
	return ok, nil
}
