package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/ebops/deploybot/chat"
	"github.com/ebops/deploybot/workflow"
)

// NotifySSOSubmitted reply-threads the ticket acceptance notice, listing the
// services the ticket covers.
func (n *Notifier) NotifySSOSubmitted(ctx context.Context, wf *workflow.Workflow, processInstanceID, submitTime string, services []string) {
	servicesText := "无服务信息"
	if len(services) > 0 {
		lines := make([]string, 0, len(services))
		for _, name := range services {
			if name != "" {
				lines = append(lines, "  • "+name)
			}
		}
		if len(lines) > 0 {
			servicesText = strings.Join(lines, "\n")
		}
	}

	text := fmt.Sprintf(
		"━━━━━━━━━━━━━━━━━━━━\n"+
			"✅ SSO 工单提交成功\n"+
			"━━━━━━━━━━━━━━━━━━━━\n\n"+
			"🆔 工作流ID: <code>%s</code>\n"+
			"📋 SSO 工单ID: <code>%s</code>\n"+
			"📅 提交时间: %s\n\n"+
			"🚀 发布服务:\n%s\n\n"+
			"⏳ 构建正在进行中，完成后将自动通知...",
		chat.Escape(wf.ID), chat.Escape(processInstanceID),
		chat.Escape(submitTime), chat.Escape(servicesText))

	if err := n.ReplyToRoots(ctx, wf, text); err != nil {
		n.logger.Error("sso submit notice undelivered", "workflow_id", wf.ID, "error", err)
	}
}

// NotifySSOSubmitFailed reply-threads the ticket rejection notice.
func (n *Notifier) NotifySSOSubmitFailed(ctx context.Context, wf *workflow.Workflow, errMsg string) {
	text := fmt.Sprintf(
		"━━━━━━━━━━━━━━━━━━━━\n"+
			"❌ SSO 工单提交失败\n"+
			"━━━━━━━━━━━━━━━━━━━━\n\n"+
			"🆔 工作流ID: <code>%s</code>\n"+
			"📅 提交时间: %s\n\n"+
			"❌ 错误信息: %s\n\n"+
			"请检查配置或联系管理员",
		chat.Escape(wf.ID), chat.Escape(orNA(wf.ApprovalTime)), chat.Escape(errMsg))

	if err := n.ReplyToRoots(ctx, wf, text); err != nil {
		n.logger.Error("sso failure notice undelivered", "workflow_id", wf.ID, "error", err)
	}
}

// NotifySSOBuild reply-threads the final state of one SSO release build and
// marks the row notified. Safe to call again on a marked row; the caller
// filters on the notified flag for idempotence.
func (n *Notifier) NotifySSOBuild(ctx context.Context, build *workflow.SSOBuild) error {
	wf, err := n.store.GetWorkflow(ctx, build.WorkflowID)
	if err != nil {
		return fmt.Errorf("load workflow for sso build %s: %w", build.BuildID, err)
	}

	duration := "未知"
	if build.BuildStartTime != nil && build.BuildEndTime != nil {
		duration = formatDuration(*build.BuildEndTime - *build.BuildStartTime)
	}
	id := chat.Escape(wf.ID)
	job := chat.Escape(build.JobName)

	var text string
	switch build.BuildStatus {
	case workflow.BuildStatusSuccess:
		text = fmt.Sprintf(
			"━━━━━━━━━━━━━━━━━━━━\n"+
				"✅ 构建成功\n"+
				"━━━━━━━━━━━━━━━━━━━━\n\n"+
				"🆔 工作流ID: <code>%s</code>\n"+
				"📋 服务名称: %s\n"+
				"⏱️ 构建时间: %s\n\n"+
				"✅ 构建状态: 成功\n"+
				"💡 请研发查看服务启动日志",
			id, job, duration)
	case workflow.BuildStatusFailure:
		text = fmt.Sprintf(
			"━━━━━━━━━━━━━━━━━━━━\n"+
				"❌ 构建失败\n"+
				"━━━━━━━━━━━━━━━━━━━━\n\n"+
				"🆔 工作流ID: <code>%s</code>\n"+
				"📋 服务名称: %s\n"+
				"⏱️ 构建时间: %s\n\n"+
				"❌ 构建状态: 失败\n"+
				"🔍 请查看日志排查问题\n\n",
			id, job, duration)
		if mentions := n.mentions(ctx, wf.Project); mentions != "" {
			text += mentions + " 请查看日志"
		}
	case workflow.BuildStatusAborted:
		text = fmt.Sprintf(
			"━━━━━━━━━━━━━━━━━━━━\n"+
				"⚠️ 构建已终止\n"+
				"━━━━━━━━━━━━━━━━━━━━\n\n"+
				"🆔 工作流ID: <code>%s</code>\n"+
				"📋 服务名称: %s\n\n"+
				"⚠️ 构建状态: 已终止",
			id, job)
	default:
		text = fmt.Sprintf(
			"━━━━━━━━━━━━━━━━━━━━\n"+
				"❓ 构建状态未知\n"+
				"━━━━━━━━━━━━━━━━━━━━\n\n"+
				"🆔 工作流ID: <code>%s</code>\n"+
				"📋 服务名称: %s\n"+
				"状态: %s",
			id, job, chat.Escape(build.BuildStatus.String()))
	}

	if err := n.ReplyToRoots(ctx, wf, text); err != nil {
		return err
	}
	if err := n.store.MarkSSOBuildNotified(ctx, build.BuildID); err != nil {
		return fmt.Errorf("mark sso build %s notified: %w", build.BuildID, err)
	}
	return nil
}

// NotifyJenkinsBuild reply-threads the final state of one Jenkins build and
// marks the row notified.
func (n *Notifier) NotifyJenkinsBuild(ctx context.Context, build *workflow.JenkinsBuild) error {
	wf, err := n.store.GetWorkflow(ctx, build.WorkflowID)
	if err != nil {
		return fmt.Errorf("load workflow for jenkins build %s: %w", build.BuildID, err)
	}

	display := build.JobName
	if build.BuildNumber != nil {
		display = fmt.Sprintf("%s#%d", build.JobName, *build.BuildNumber)
	}
	display = chat.Escape(display)

	var headline string
	switch build.BuildStatus {
	case workflow.BuildStatusSuccess:
		headline = fmt.Sprintf("✅ 工作流已通过 — %s 服务部署完成。", display)
	case workflow.BuildStatusFailure:
		headline = fmt.Sprintf("❌ 工作流已通过 — %s 服务构建失败。", display)
	case workflow.BuildStatusAborted:
		headline = fmt.Sprintf("⚠️ 工作流已通过 — %s 服务构建已终止。", display)
	case workflow.BuildStatusUnstable:
		headline = fmt.Sprintf("⚠️ 工作流已通过 — %s 服务构建不稳定（可能有测试失败）。", display)
	default:
		headline = fmt.Sprintf("❓ 工作流已通过 — %s 服务构建状态: %s", display, chat.Escape(build.BuildStatus.String()))
	}

	lines := []string{headline, fmt.Sprintf("🆔 工作流ID: <code>%s</code>", chat.Escape(wf.ID))}
	if hash := build.BuildParameters["check_commitID"]; hash != "" {
		lines = append(lines, fmt.Sprintf("🔑 发版hash: <code>%s</code>", chat.Escape(hash)))
	}
	if build.BuildDuration != nil {
		lines = append(lines, "⏱️ 构建时间: "+formatDuration(*build.BuildDuration/1000))
	}
	if build.BuildStatus == workflow.BuildStatusFailure {
		if mentions := n.mentions(ctx, wf.Project); mentions != "" {
			lines = append(lines, mentions+" 请查看日志")
		}
	}
	text := strings.Join(lines, "\n")

	if err := n.ReplyToRoots(ctx, wf, text); err != nil {
		return err
	}
	if err := n.store.MarkJenkinsBuildNotified(ctx, build.BuildID); err != nil {
		return fmt.Errorf("mark jenkins build %s notified: %w", build.BuildID, err)
	}
	return nil
}

// SweepPending delivers completion notices for terminal builds whose poller
// died with a previous process. Run once at boot, after the transport is up.
// Returns the number of notices delivered.
func (n *Notifier) SweepPending(ctx context.Context, limit int) (int, error) {
	pending, err := n.store.PendingNotifications(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending notifications: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	n.logger.Info("delivering notifications left over from a previous run", "count", len(pending))

	delivered := 0
	for _, item := range pending {
		switch {
		case item.SSO != nil:
			err = n.NotifySSOBuild(ctx, item.SSO)
		case item.Jenkins != nil:
			err = n.NotifyJenkinsBuild(ctx, item.Jenkins)
		default:
			continue
		}
		if err != nil {
			n.logger.Error("sweep notification failed",
				"workflow_id", item.WorkflowID(), "error", err)
			continue
		}
		delivered++
	}
	return delivered, nil
}
