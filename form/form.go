// Package form implements the multi-step deployment request conversation:
// environment selection, branch and service choices, hash and content input,
// and the confirm step that hands the canonical submission text to the
// approval dispatcher. State is per (chat, user) and lives in memory; a
// fresh entry command always starts a fresh form.
package form

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ebops/deploybot/chat"
	"github.com/ebops/deploybot/config"
	"github.com/ebops/deploybot/submission"
	"github.com/ebops/deploybot/workflow"
)

const formHeader = "📋 申请测试环境服务发版\n\n"

// OptionsLoader yields the current project options document.
type OptionsLoader interface {
	Load(ctx context.Context) (*config.Options, error)
}

// SubmitRequest is a confirmed form handed to the approval dispatcher.
type SubmitRequest struct {
	ChatID       int64
	UserID       int64
	Username     string
	Project      string
	TemplateType workflow.TemplateType
	// Data is the canonical submission text rendered from the form.
	Data string
}

// Submitter finalises a confirmed form: validation, workflow creation and
// the fan-out to approval groups. It reports outcomes to the user itself and
// only returns whether the submission went through.
type Submitter interface {
	Submit(ctx context.Context, req SubmitRequest) bool
}

// Handler drives form conversations. One instance serves every project; the
// entry command decides which project a session belongs to.
type Handler struct {
	transport chat.Transport
	options   OptionsLoader
	submitter Submitter
	logger    *slog.Logger
	sessions  *sessions
	now       func() time.Time
}

func New(transport chat.Transport, options OptionsLoader, submitter Submitter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		transport: transport,
		options:   options,
		submitter: submitter,
		logger:    logger,
		sessions:  newSessions(),
		now:       time.Now,
	}
}

// Start returns the entry handler for one project's deploy command. An empty
// project name opens with the project selection screen instead.
func (h *Handler) Start(project string) chat.HandlerFunc {
	return func(ctx context.Context, u chat.Update) error {
		return h.start(ctx, u, project)
	}
}

func (h *Handler) start(ctx context.Context, u chat.Update, project string) error {
	msg := u.Message
	if msg == nil {
		return nil
	}
	h.logger.Info("deploy command received", "user_id", msg.UserID, "project", project)

	opts, err := h.options.Load(ctx)
	if err != nil {
		h.logger.Error("start form failed", "user_id", msg.UserID, "error", err)
		return h.reply(ctx, msg.ChatID, fmt.Sprintf("❌ 启动表单失败: %v", err))
	}

	sess := &session{form: submission.Form{
		ApplyTime:    workflow.Timestamp(h.now()),
		TemplateType: workflow.TemplateDefault,
	}}
	h.sessions.put(msg.ChatID, msg.UserID, sess)

	if project == "" {
		return h.showProjectSelection(ctx, u, sess, opts)
	}

	p := opts.Project(project)
	if p == nil {
		h.logger.Error("project not configured", "project", project)
		h.endSession(u)
		return h.reply(ctx, msg.ChatID, fmt.Sprintf("❌ 项目 %s 不存在，请联系管理员", chat.Escape(project)))
	}
	sess.bindProject(project, p)
	return h.showEnvironmentSelection(ctx, u, sess, p)
}

// Cancel handles /cancel: it discards the form in progress, if any.
func (h *Handler) Cancel(ctx context.Context, u chat.Update) error {
	msg := u.Message
	if msg == nil {
		return nil
	}
	if h.sessions.take(msg.ChatID, msg.UserID) == nil {
		return nil
	}
	h.logger.Info("form cancelled", "user_id", msg.UserID)
	return h.reply(ctx, msg.ChatID, "❌ 已取消提交")
}

// HandleText routes a plain text message into the step waiting for input.
// Text arriving outside a form, or in a button-driven step, is ignored.
func (h *Handler) HandleText(ctx context.Context, u chat.Update) error {
	msg := u.Message
	if msg == nil || msg.Command != "" {
		return nil
	}
	sess := h.sessions.get(msg.ChatID, msg.UserID)
	if sess == nil {
		return nil
	}
	switch sess.step {
	case stepInputBranch:
		return h.branchText(ctx, u, sess)
	case stepInputHash:
		return h.hashText(ctx, u, sess)
	case stepInputContent:
		return h.contentText(ctx, u, sess)
	case stepInputAddress:
		return h.addressText(ctx, u, sess)
	}
	return nil
}

func (s *session) bindProject(name string, p *config.Project) {
	s.form.Project = name
	s.addressOnly = p.AddressOnly
	s.form.TemplateType = workflow.TemplateDefault
	if p.AddressOnly {
		s.form.TemplateType = workflow.TemplateAddressOnly
	}
}

func (h *Handler) showProjectSelection(ctx context.Context, u chat.Update, sess *session, opts *config.Options) error {
	names := opts.ProjectNames()
	if len(names) == 0 {
		h.logger.Error("no projects configured")
		h.endSession(u)
		return h.replyOrEdit(ctx, u, "❌ 未配置项目列表，请联系管理员", nil)
	}

	text := formHeader +
		"✅ 申请时间: " + sess.form.ApplyTime + "\n" +
		"⏳ 申请项目: 请选择"
	sess.step = stepSelectProject
	return h.replyOrEdit(ctx, u, text, pairRows(chat.ActionSelectProject, names))
}

// SelectProject handles a project button press on the selection screen.
func (h *Handler) SelectProject(ctx context.Context, u chat.Update) error {
	cb := u.Callback
	if cb == nil {
		return nil
	}
	h.answer(ctx, cb.ID, "", false)

	sess := h.sessions.get(cb.ChatID, cb.UserID)
	if sess == nil || sess.step != stepSelectProject {
		return nil
	}

	opts, err := h.options.Load(ctx)
	if err != nil {
		return fmt.Errorf("load options: %w", err)
	}
	p := opts.Project(cb.Arg)
	if p == nil {
		h.endSession(u)
		return h.replyOrEdit(ctx, u, fmt.Sprintf("❌ 项目 %s 不存在，请联系管理员", chat.Escape(cb.Arg)), nil)
	}
	sess.bindProject(cb.Arg, p)
	h.logger.Info("project selected", "user_id", cb.UserID, "project", cb.Arg)
	return h.showEnvironmentSelection(ctx, u, sess, p)
}

func (h *Handler) showEnvironmentSelection(ctx context.Context, u chat.Update, sess *session, p *config.Project) error {
	if len(p.Environments) == 0 {
		h.logger.Error("no environments configured", "project", sess.form.Project)
		h.endSession(u)
		return h.replyOrEdit(ctx, u, fmt.Sprintf("❌ 项目 %s 未配置环境列表，请联系管理员", chat.Escape(sess.form.Project)), nil)
	}

	text := formHeader +
		"✅ 申请时间: " + sess.form.ApplyTime + "\n" +
		"✅ 申请项目: " + chat.Escape(sess.form.Project) + "\n" +
		"⏳ 申请环境: 请选择"
	sess.step = stepSelectEnvironment
	return h.replyOrEdit(ctx, u, text, pairRows(chat.ActionSelectEnv, p.Environments))
}

// SelectEnvironment handles an environment button press. Switching the
// environment resets any earlier service selection.
func (h *Handler) SelectEnvironment(ctx context.Context, u chat.Update) error {
	cb := u.Callback
	if cb == nil {
		return nil
	}
	h.answer(ctx, cb.ID, "", false)

	sess := h.sessions.get(cb.ChatID, cb.UserID)
	if sess == nil || sess.step != stepSelectEnvironment {
		return nil
	}

	opts, err := h.options.Load(ctx)
	if err != nil {
		return fmt.Errorf("load options: %w", err)
	}
	p := opts.Project(sess.form.Project)
	if p == nil {
		h.endSession(u)
		return h.replyOrEdit(ctx, u, fmt.Sprintf("❌ 项目 %s 不存在，请联系管理员", chat.Escape(sess.form.Project)), nil)
	}

	sess.form.Environment = cb.Arg
	sess.form.Services = nil
	h.logger.Info("environment selected", "user_id", cb.UserID, "environment", cb.Arg)

	if sess.addressOnly {
		sess.form.Branch = "-"
		if auto := autoSelectServices(p, cb.Arg); len(auto) > 0 {
			sess.form.Services = auto
		}
		return h.showAddressInput(ctx, u, sess)
	}

	sess.form.Branch = defaultBranch(p, cb.Arg)
	return h.showBranchInput(ctx, u, sess, p)
}

// defaultBranch resolves the configured default branch for a project and
// environment, falling back to "main".
func defaultBranch(p *config.Project, env string) string {
	if p != nil {
		if b := p.DefaultBranch.Resolve(env); b != "" {
			return b
		}
	}
	return "main"
}

// autoSelectServices picks the service list for an address-only project. An
// exact or case-insensitive environment key wins; otherwise the uat catalog
// doubles as an index table by convention, TRC at 0 and ETH at 1.
func autoSelectServices(p *config.Project, env string) []string {
	if p == nil || env == "" || p.Services.ByEnv == nil {
		return nil
	}
	if _, services, ok := p.Services.MatchEnv(env); ok {
		return services
	}
	fallback := p.Services.ByEnv["uat"]
	if len(fallback) == 0 {
		fallback = p.Services.ByEnv["UAT"]
	}
	idx := 0
	if strings.EqualFold(env, "eth") {
		idx = 1
	}
	if idx < len(fallback) {
		return []string{fallback[idx]}
	}
	return nil
}

func (h *Handler) replyOrEdit(ctx context.Context, u chat.Update, text string, kb chat.Keyboard) error {
	if u.Callback != nil {
		return h.transport.Edit(ctx, u.Callback.ChatID, u.Callback.MessageID, text, kb)
	}
	_, err := h.transport.Send(ctx, chat.Message{ChatID: u.Message.ChatID, Text: text, Keyboard: kb})
	return err
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) error {
	_, err := h.transport.Send(ctx, chat.Message{ChatID: chatID, Text: text})
	return err
}

// answer acknowledges a callback so the button spinner stops. Failures only
// cost the spinner, so they are not propagated.
func (h *Handler) answer(ctx context.Context, callbackID, text string, alert bool) {
	if err := h.transport.AnswerCallback(ctx, callbackID, text, alert); err != nil {
		h.logger.Debug("answer callback failed", "error", err)
	}
}

func (h *Handler) endSession(u chat.Update) {
	h.sessions.take(u.ChatID(), u.UserID())
}

// pairRows lays out one button per item, two per row.
func pairRows(action string, items []string) chat.Keyboard {
	var kb chat.Keyboard
	for i := 0; i < len(items); i += 2 {
		row := chat.Row(chat.Btn(items[i], action, items[i]))
		if i+1 < len(items) {
			row = append(row, chat.Btn(items[i+1], action, items[i+1]))
		}
		kb = append(kb, row)
	}
	return kb
}
