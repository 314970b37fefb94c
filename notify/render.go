package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ebops/deploybot/chat"
	"github.com/ebops/deploybot/storage"
	"github.com/ebops/deploybot/submission"
	"github.com/ebops/deploybot/workflow"
)

// templateValues carries the substitution set for one message. Keys mirror
// the {placeholder} names embedded in the stored templates.
type templateValues struct {
	WorkflowID      string
	Username        string
	CreatedAt       string
	SubmissionData  string // already HTML-safe, substituted verbatim
	Status          string
	Approver        string
	ApprovalTime    string
	ApprovalComment string
}

// substitute fills the {placeholder} slots of a template. Placeholders the
// template does not use are ignored; unknown placeholders survive verbatim,
// so a typo in a stored template degrades visibly instead of erroring.
func substitute(template string, v templateValues) string {
	return strings.NewReplacer(
		"{workflow_id}", chat.Escape(v.WorkflowID),
		"{username}", chat.Escape(v.Username),
		"{created_at}", chat.Escape(v.CreatedAt),
		"{submission_data}", v.SubmissionData,
		"{status}", chat.Escape(v.Status),
		"{approver_username}", chat.Escape(v.Approver),
		"{approval_time}", chat.Escape(v.ApprovalTime),
		"{approval_comment}", chat.Escape(v.ApprovalComment),
	).Replace(template)
}

// template resolves a template by key, preferring the project-scoped row,
// then the global row, then the built-in default.
func (n *Notifier) template(ctx context.Context, key, project string) string {
	text, err := n.store.GetMessageTemplate(ctx, key, project)
	if err == nil && text != "" {
		return text
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		n.logger.Warn("template lookup failed, using built-in",
			"key", key, "project", project, "error", err)
	}
	return DefaultTemplates()[key]
}

func orNA(s *string) string {
	if s == nil || *s == "" {
		return "N/A"
	}
	return *s
}

// renderPending renders the approval request body for a pending workflow.
func (n *Notifier) renderPending(ctx context.Context, wf *workflow.Workflow, approver string) string {
	template := n.template(ctx, pendingKey(wf.TemplateType), wf.Project)
	return substitute(template, templateValues{
		WorkflowID:     wf.ID,
		Username:       wf.Username,
		CreatedAt:      wf.CreatedAt,
		SubmissionData: submission.Pretty(wf.SubmissionData, wf.TemplateType == workflow.TemplateAddressOnly),
		Status:         wf.Status.Label(),
		Approver:       approver,
	})
}

// renderResult renders the terminal decision body. The stored approved
// template carries a "submitting to SSO" trailer which is stripped here
// regardless of whether SSO is enabled.
func (n *Notifier) renderResult(ctx context.Context, wf *workflow.Workflow) string {
	template := n.template(ctx, resultKey(wf.Status, wf.TemplateType), wf.Project)
	if wf.Status == workflow.StatusApproved {
		template = strings.ReplaceAll(template, ssoTrailer, "")
	}

	comment := "无"
	if wf.ApprovalComment != nil && *wf.ApprovalComment != "" {
		comment = *wf.ApprovalComment
	}
	return substitute(template, templateValues{
		WorkflowID:      wf.ID,
		Username:        wf.Username,
		CreatedAt:       wf.CreatedAt,
		SubmissionData:  submission.Pretty(wf.SubmissionData, wf.TemplateType == workflow.TemplateAddressOnly),
		Status:          wf.Status.Label(),
		Approver:        orNA(wf.ApproverUsername),
		ApprovalTime:    orNA(wf.ApprovalTime),
		ApprovalComment: comment,
	})
}

// formatDuration renders a duration in seconds as the Chinese "X分Y秒"
// shorthand used by every build notice.
func formatDuration(seconds int64) string {
	if seconds < 0 {
		return "未知"
	}
	return fmt.Sprintf("%d分%d秒", seconds/60, seconds%60)
}

// mentions renders "@user1 @user2" for the project's ops users, stripping
// any stored leading @. Empty when the project has none configured.
func (n *Notifier) mentions(ctx context.Context, project string) string {
	if project == "" {
		return ""
	}
	opts, err := n.options.Load(ctx)
	if err != nil {
		n.logger.Warn("load options for ops mentions", "project", project, "error", err)
		return ""
	}
	p := opts.Project(project)
	if p == nil || len(p.OpsUsernames) == 0 {
		return ""
	}
	parts := make([]string, 0, len(p.OpsUsernames))
	for _, name := range p.OpsUsernames {
		name = strings.TrimPrefix(strings.TrimSpace(name), "@")
		if name != "" {
			parts = append(parts, "@"+chat.Escape(name))
		}
	}
	return strings.Join(parts, " ")
}
