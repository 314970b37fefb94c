package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ebops/deploybot/chat"
	"github.com/ebops/deploybot/config"
	"github.com/ebops/deploybot/metrics"
	"github.com/ebops/deploybot/storage"
	"github.com/ebops/deploybot/submission"
	"github.com/ebops/deploybot/workflow"
)

// dmDeadline bounds the direct message to the submitter so a slow chat API
// cannot stall the approval flow.
const dmDeadline = 5 * time.Second

// OptionsLoader provides the current project options document.
type OptionsLoader interface {
	Load(ctx context.Context) (*config.Options, error)
}

// Store is the persistence surface the notifier reads templates and
// workflows from and writes notified marks to.
type Store interface {
	GetMessageTemplate(ctx context.Context, key, project string) (string, error)
	GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error)
	MarkSSOBuildNotified(ctx context.Context, buildID string) error
	MarkJenkinsBuildNotified(ctx context.Context, buildID string) error
	PendingNotifications(ctx context.Context, limit int) ([]storage.PendingBuild, error)
}

// Notifier owns every message the bot emits about a workflow: the root
// approval request per group, its terminal rewrite, reply-threaded build
// events, and the submitter DM.
type Notifier struct {
	transport chat.Transport
	store     Store
	options   OptionsLoader
	cfg       *config.App
	logger    *slog.Logger
}

// New builds a Notifier.
func New(transport chat.Transport, store Store, options OptionsLoader, cfg *config.App, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		transport: transport,
		store:     store,
		options:   options,
		cfg:       cfg,
		logger:    logger.With("component", "notify"),
	}
}

// approver returns the configured reviewer name for the pending footer,
// stripped of any leading @. Falls back to the generic 审批人.
func (n *Notifier) approver(ctx context.Context) string {
	name := strings.TrimPrefix(n.cfg.ApproverUsername(ctx), "@")
	if name == "" {
		return "审批人"
	}
	return name
}

// PostApprovalRequests sends the pending approval message, with approve and
// reject buttons, to every group configured for the project. It returns the
// (group, message id) pairs that succeeded. Partial delivery is fine; an
// error is returned only when every group send failed.
func (n *Notifier) PostApprovalRequests(ctx context.Context, wf *workflow.Workflow, groupIDs []int64) (workflow.GroupMessages, error) {
	text := n.renderPending(ctx, wf, n.approver(ctx))
	keyboard := chat.Keyboard{chat.Row(
		chat.Btn("✅ 通过", chat.ActionApprove, wf.ID),
		chat.Btn("❌ 拒绝", chat.ActionReject, wf.ID),
	)}

	posted := make(workflow.GroupMessages, len(groupIDs))
	for _, groupID := range groupIDs {
		messageID, err := n.transport.Send(ctx, chat.Message{
			ChatID:   groupID,
			Text:     text,
			Keyboard: keyboard,
		})
		result := chat.Classify(err)
		metrics.ChatSends.WithLabelValues(result.String()).Inc()
		if err != nil {
			n.logger.Error("post approval request failed",
				"workflow_id", wf.ID, "group_id", groupID, "error", err)
			continue
		}
		posted[groupID] = messageID
		n.logger.Info("approval request posted",
			"workflow_id", wf.ID, "group_id", groupID, "message_id", messageID)
	}
	if len(posted) == 0 {
		return nil, fmt.Errorf("workflow %s: no group accepted the approval request", wf.ID)
	}
	return posted, nil
}

// EditApprovalMessages rewrites every root approval message to the terminal
// template, which also removes the inline buttons. Failures are logged per
// group and never abort the remaining edits.
func (n *Notifier) EditApprovalMessages(ctx context.Context, wf *workflow.Workflow) {
	text := n.renderResult(ctx, wf)
	updated := 0
	for groupID, messageID := range wf.GroupMessages {
		if err := n.transport.Edit(ctx, groupID, messageID, text, nil); err != nil {
			n.logger.Error("edit approval message failed",
				"workflow_id", wf.ID, "group_id", groupID, "message_id", messageID, "error", err)
			continue
		}
		updated++
	}
	n.logger.Info("approval messages updated",
		"workflow_id", wf.ID, "updated", updated, "total", len(wf.GroupMessages))
}

// ReplyToRoots threads text beneath the workflow's root approval message in
// every group. Workflows without stored roots (posted by an older build, or
// whose post partially failed) degrade to plain sends in the project's
// configured groups. Returns an error only when nothing was delivered.
func (n *Notifier) ReplyToRoots(ctx context.Context, wf *workflow.Workflow, text string) error {
	targets := make([]chat.Message, 0, len(wf.GroupMessages))
	for groupID, rootID := range wf.GroupMessages {
		targets = append(targets, chat.Message{ChatID: groupID, Text: text, ReplyTo: rootID})
	}

	if len(targets) == 0 {
		n.logger.Warn("workflow has no root messages, falling back to project groups",
			"workflow_id", wf.ID)
		for _, groupID := range n.fallbackGroups(ctx, wf) {
			targets = append(targets, chat.Message{ChatID: groupID, Text: text})
		}
	}
	if len(targets) == 0 {
		return fmt.Errorf("workflow %s: no notification target", wf.ID)
	}

	delivered := 0
	for _, msg := range targets {
		_, err := n.transport.Send(ctx, msg)
		result := chat.Classify(err)
		metrics.ChatSends.WithLabelValues(result.String()).Inc()
		if err != nil {
			n.logger.Error("send build notice failed",
				"workflow_id", wf.ID, "group_id", msg.ChatID, "error", err)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return fmt.Errorf("workflow %s: build notice undeliverable", wf.ID)
	}
	return nil
}

// fallbackGroups resolves group ids from project options when the workflow
// carries no root message map. The project name comes from the workflow row
// or, failing that, from the submission text.
func (n *Notifier) fallbackGroups(ctx context.Context, wf *workflow.Workflow) []int64 {
	project := wf.Project
	if project == "" {
		project = submission.Parse(wf.SubmissionData).Project
	}
	if project == "" {
		return nil
	}
	opts, err := n.options.Load(ctx)
	if err != nil {
		n.logger.Error("load options for fallback groups",
			"workflow_id", wf.ID, "error", err)
		return nil
	}
	p := opts.Project(project)
	if p == nil {
		return nil
	}
	return p.GroupIDs
}

// NotifySubmitter direct-messages the decision to the submitting user. The
// send runs under a short deadline; an unreachable user (never started the
// bot) is logged as a warning, everything else as an error. The approval
// outcome does not depend on this message.
func (n *Notifier) NotifySubmitter(ctx context.Context, wf *workflow.Workflow) {
	var text string
	switch wf.Status {
	case workflow.StatusApproved:
		text = fmt.Sprintf(
			"✅ 您的工作流已通过审批！\n\n🆔 工作流ID: %s\n✅ 审批人: @%s\n📅 审批时间: %s",
			wf.ID, orNA(wf.ApproverUsername), orNA(wf.ApprovalTime))
	case workflow.StatusRejected:
		comment := "无"
		if wf.ApprovalComment != nil && *wf.ApprovalComment != "" {
			comment = *wf.ApprovalComment
		}
		text = fmt.Sprintf(
			"❌ 您的工作流已被拒绝\n\n🆔 工作流ID: %s\n❌ 审批人: @%s\n📅 审批时间: %s\n💬 审批意见: %s",
			wf.ID, orNA(wf.ApproverUsername), orNA(wf.ApprovalTime), comment)
	default:
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, dmDeadline)
	defer cancel()

	_, err := n.transport.Send(sendCtx, chat.Message{ChatID: wf.UserID, Text: chat.Escape(text)})
	result := chat.Classify(err)
	metrics.ChatSends.WithLabelValues(result.String()).Inc()
	switch {
	case err == nil:
		n.logger.Info("submitter notified",
			"workflow_id", wf.ID, "user_id", wf.UserID, "status", wf.Status)
	case result == chat.UserUnreachable:
		n.logger.Warn("submitter unreachable, user has not started the bot",
			"workflow_id", wf.ID, "user_id", wf.UserID)
	case errors.Is(err, context.DeadlineExceeded) || result == chat.Transient:
		n.logger.Warn("submitter notification timed out, approval unaffected",
			"workflow_id", wf.ID, "user_id", wf.UserID, "error", err)
	default:
		n.logger.Error("submitter notification failed",
			"workflow_id", wf.ID, "user_id", wf.UserID, "error", err)
	}
}
