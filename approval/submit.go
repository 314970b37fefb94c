package approval

import (
	"context"
	"fmt"

	"github.com/ebops/deploybot/chat"
	"github.com/ebops/deploybot/form"
	"github.com/ebops/deploybot/metrics"
)

// Submit implements form.Submitter: it persists the workflow, fans the
// approval request out to the project's groups, and receipts the submitter.
// A workflow no group ever saw is rolled back so it cannot sit pending
// forever.
func (d *Dispatcher) Submit(ctx context.Context, req form.SubmitRequest) bool {
	wf, err := d.store.CreateWorkflow(ctx, req.UserID, req.Username, req.Data, req.Project, req.TemplateType)
	if err != nil {
		d.logger.Error("create workflow failed",
			"user_id", req.UserID, "project", req.Project, "error", err)
		return false
	}
	metrics.WorkflowsCreated.WithLabelValues(req.Project).Inc()
	d.logger.Info("workflow created",
		"workflow_id", wf.ID, "user_id", req.UserID, "project", req.Project)

	opts, err := d.options.Load(ctx)
	if err != nil {
		d.logger.Error("load options failed", "workflow_id", wf.ID, "error", err)
		d.rollback(ctx, wf.ID)
		d.send(ctx, req.ChatID, "❌ 发送到群组失败，请稍后重试")
		return false
	}
	groupIDs, err := opts.GroupIDsByProject(req.Project)
	if err != nil {
		d.logger.Error("no approval groups",
			"workflow_id", wf.ID, "project", req.Project, "error", err)
		d.rollback(ctx, wf.ID)
		d.send(ctx, req.ChatID, "❌ 提交失败："+err.Error())
		return false
	}

	posted, err := d.notifier.PostApprovalRequests(ctx, wf, groupIDs)
	if err != nil {
		d.logger.Error("post approval requests failed", "workflow_id", wf.ID, "error", err)
		d.rollback(ctx, wf.ID)
		d.send(ctx, req.ChatID, "❌ 发送到群组失败，请稍后重试")
		return false
	}
	if err := d.store.AttachGroupMessages(ctx, wf.ID, posted); err != nil {
		// The approval still works without the map; build replies degrade
		// to plain group sends.
		d.logger.Error("attach group messages failed", "workflow_id", wf.ID, "error", err)
	}

	d.send(ctx, req.ChatID, fmt.Sprintf(
		"✅ 工作流提交成功！\n\n🆔 工作流ID: %s\n📝 已发送到群组，等待审批...", wf.ID))
	d.logger.Info("workflow submitted", "workflow_id", wf.ID, "groups", len(posted))
	return true
}

// rollback removes a workflow no reviewer will ever see.
func (d *Dispatcher) rollback(ctx context.Context, id string) {
	if err := d.store.DeleteWorkflow(ctx, id); err != nil {
		d.logger.Error("workflow rollback failed", "workflow_id", id, "error", err)
	}
}

func (d *Dispatcher) send(ctx context.Context, chatID int64, text string) {
	if _, err := d.transport.Send(ctx, chat.Message{ChatID: chatID, Text: text}); err != nil {
		d.logger.Warn("submission receipt failed", "chat_id", chatID, "error", err)
	}
}
