package approval

import (
	"context"
	"errors"
	"strings"

	"github.com/ebops/deploybot/chat"
	"github.com/ebops/deploybot/metrics"
	"github.com/ebops/deploybot/storage"
	"github.com/ebops/deploybot/workflow"
)

// HandleDecision resolves one approve/reject button click. The callback is
// answered before any slow work starts so the button spinner never hangs on
// a downstream system; everything after the permission gate runs detached.
func (d *Dispatcher) HandleDecision(ctx context.Context, u chat.Update) error {
	cb := u.Callback
	if cb == nil {
		return nil
	}
	action := workflow.Action(cb.Action)
	if !action.IsValid() || cb.Arg == "" {
		d.logger.Warn("malformed decision callback",
			"action", cb.Action, "arg", cb.Arg, "user_id", cb.UserID)
		return d.transport.AnswerCallback(ctx, cb.ID, "❌ 无效的审批操作", true)
	}

	toast := "✅ 正在处理审批..."
	if action == workflow.ActionReject {
		toast = "❌ 正在处理拒绝..."
	}
	if err := d.transport.AnswerCallback(ctx, cb.ID, toast, false); err != nil {
		d.logger.Warn("callback ack failed", "workflow_id", cb.Arg, "error", err)
	}

	// Rejection stays open to everyone in the group; it doubles as a
	// cancel button for the submitter.
	if action == workflow.ActionApprove && !d.authorized(ctx, cb) {
		return d.transport.AnswerCallback(ctx, cb.ID, "❌ 你无权同意此次服务发版", true)
	}

	metrics.Go(d.logger, "approval_decision", func() {
		d.decide(ctx, cb, action, cb.Arg)
	})
	return nil
}

// authorized reports whether the clicker may approve. An empty restriction
// admits everyone; otherwise the username (case-insensitive, leading @
// stripped) or the numeric user id must match the configured approver.
func (d *Dispatcher) authorized(ctx context.Context, cb *chat.Callback) bool {
	name := strings.TrimPrefix(d.cfg.ApproverUsername(ctx), "@")
	id := d.cfg.ApproverUserID(ctx)
	if name == "" && id == 0 {
		return true
	}
	if name != "" && strings.EqualFold(strings.TrimPrefix(cb.Username, "@"), name) {
		return true
	}
	if id != 0 && cb.UserID == id {
		return true
	}
	d.logger.Warn("approve denied",
		"user_id", cb.UserID, "username", cb.Username,
		"approver_username", name, "approver_user_id", id)
	return false
}

// decide runs one decision end to end: state transition, API sync, release
// fan-out on approve, group message rewrite, submitter DM.
func (d *Dispatcher) decide(ctx context.Context, cb *chat.Callback, action workflow.Action, workflowID string) {
	wf, err := d.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			d.logger.Warn("workflow gone", "workflow_id", workflowID)
		} else {
			d.logger.Error("load workflow failed", "workflow_id", workflowID, "error", err)
		}
		d.edit(ctx, cb, "❌ 工作流不存在或已过期")
		return
	}
	if wf.Status != workflow.StatusPending {
		d.logger.Warn("workflow already decided",
			"workflow_id", workflowID, "status", wf.Status)
		d.alert(ctx, cb, "⚠️ 该工作流已被审批")
		return
	}

	var won bool
	if action == workflow.ActionApprove {
		won, err = d.machine.Approve(ctx, workflowID, cb.UserID, cb.Username, "")
	} else {
		won, err = d.machine.Reject(ctx, workflowID, cb.UserID, cb.Username, "")
	}
	if err != nil || !won {
		d.logger.Error("record decision failed",
			"workflow_id", workflowID, "action", action, "won", won, "error", err)
		d.edit(ctx, cb, "❌ 审批操作失败")
		return
	}

	wf, err = d.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		d.logger.Error("reload workflow failed", "workflow_id", workflowID, "error", err)
		d.edit(ctx, cb, "❌ 获取工作流数据失败")
		return
	}
	metrics.WorkflowsResolved.WithLabelValues(wf.Status.String()).Inc()
	d.logger.Info("workflow decided",
		"workflow_id", workflowID, "status", wf.Status,
		"approver_id", cb.UserID, "approver", cb.Username)

	d.syncer.Push(ctx, wf)

	if action == workflow.ActionApprove {
		d.sso.Run(ctx, wf)
		d.jenkins.Run(ctx, wf)
	}

	d.notifier.EditApprovalMessages(ctx, wf)
	d.notifier.NotifySubmitter(ctx, wf)
}

// edit rewrites the clicked approval message, typically with an error the
// whole group should see.
func (d *Dispatcher) edit(ctx context.Context, cb *chat.Callback, text string) {
	if err := d.transport.Edit(ctx, cb.ChatID, cb.MessageID, text, nil); err != nil {
		d.logger.Warn("decision edit failed",
			"chat_id", cb.ChatID, "message_id", cb.MessageID, "error", err)
	}
}

// alert answers the callback with a modal popup only the clicker sees.
func (d *Dispatcher) alert(ctx context.Context, cb *chat.Callback, text string) {
	if err := d.transport.AnswerCallback(ctx, cb.ID, text, true); err != nil {
		d.logger.Warn("decision alert failed", "callback_id", cb.ID, "error", err)
	}
}
