package form

import (
	"context"
	"fmt"
	"strings"

	"github.com/ebops/deploybot/chat"
	"github.com/ebops/deploybot/config"
)

// baseSummary renders the ✅ lines every mid-form screen starts with.
func baseSummary(sess *session) string {
	return formHeader +
		"✅ 申请时间: " + sess.form.ApplyTime + "\n" +
		"✅ 申请项目: " + chat.Escape(sess.form.Project) + "\n" +
		"✅ 申请环境: " + chat.Escape(sess.form.Environment) + "\n"
}

func (h *Handler) showBranchInput(ctx context.Context, u chat.Update, sess *session, p *config.Project) error {
	def := defaultBranch(p, sess.form.Environment)
	branch := sess.form.Branch
	if branch == "" {
		branch = def
	}

	kb := chat.Keyboard{
		chat.Row(chat.Btn("✅ 使用默认: "+def, chat.ActionBranch, "default")),
		chat.Row(chat.Btn("✏️ 自定义输入", chat.ActionBranch, "custom")),
	}
	text := baseSummary(sess) +
		"⏳ 申请发版分支: " + chat.Escape(branch) + "\n\n" +
		"💡 选择默认分支或点击自定义输入"
	sess.step = stepInputBranch
	return h.replyOrEdit(ctx, u, text, kb)
}

// Branch handles the default/custom branch buttons.
func (h *Handler) Branch(ctx context.Context, u chat.Update) error {
	cb := u.Callback
	if cb == nil {
		return nil
	}
	h.answer(ctx, cb.ID, "", false)

	sess := h.sessions.get(cb.ChatID, cb.UserID)
	if sess == nil || sess.step != stepInputBranch {
		return nil
	}

	switch cb.Arg {
	case "default":
		opts, err := h.options.Load(ctx)
		if err != nil {
			return fmt.Errorf("load options: %w", err)
		}
		sess.form.Branch = defaultBranch(opts.Project(sess.form.Project), sess.form.Environment)
		h.logger.Info("default branch selected", "user_id", cb.UserID, "branch", sess.form.Branch)
		return h.showServiceSelection(ctx, u, sess)
	case "custom":
		text := baseSummary(sess) +
			"⏳ 申请发版分支: 请输入\n\n" +
			"💡 请在下方输入框中直接输入分支名称，然后发送"
		return h.transport.Edit(ctx, cb.ChatID, cb.MessageID, text, nil)
	}
	return nil
}

func (h *Handler) branchText(ctx context.Context, u chat.Update, sess *session) error {
	branch := strings.TrimSpace(u.Message.Text)
	if branch == "" {
		return h.reply(ctx, u.Message.ChatID, "❌ 分支名称不能为空，请重新输入")
	}
	sess.form.Branch = branch
	h.logger.Info("branch entered", "user_id", u.Message.UserID, "branch", branch)
	return h.showServiceSelection(ctx, u, sess)
}

// showServiceSelection renders the multi-select screen: one button per
// service so long names stay readable, selected entries marked with ✓.
func (h *Handler) showServiceSelection(ctx context.Context, u chat.Update, sess *session) error {
	opts, err := h.options.Load(ctx)
	if err != nil {
		return fmt.Errorf("load options: %w", err)
	}
	var services []string
	if p := opts.Project(sess.form.Project); p != nil {
		services = p.Services.ForEnvironment(sess.form.Environment)
	}
	if len(services) == 0 {
		h.logger.Error("no services configured", "project", sess.form.Project, "environment", sess.form.Environment)
		h.endSession(u)
		return h.replyOrEdit(ctx, u, fmt.Sprintf("❌ 项目 %s 在 %s 环境下未配置服务列表，请联系管理员",
			chat.Escape(sess.form.Project), chat.Escape(sess.form.Environment)), nil)
	}

	// Selections made against an older catalog are dropped.
	selected := make([]string, 0, len(sess.form.Services))
	for _, s := range sess.form.Services {
		if contains(services, s) {
			selected = append(selected, s)
		}
	}
	sess.form.Services = selected

	kb := make(chat.Keyboard, 0, len(services)+1)
	for _, svc := range services {
		label := svc
		if contains(selected, svc) {
			label = "✓ " + svc
		}
		kb = append(kb, chat.Row(chat.Btn(label, chat.ActionSelectService, svc)))
	}
	kb = append(kb, chat.Row(chat.Btn("✅ 完成选择", chat.ActionConfirmServices, "")))

	selectedText := "未选择"
	if len(selected) > 0 {
		selectedText = strings.Join(selected, ", ")
	}
	text := baseSummary(sess) +
		"✅ 申请发版分支: " + chat.Escape(sess.form.Branch) + "\n" +
		"⏳ 申请部署服务: " + chat.Escape(selectedText) + "\n\n" +
		"💡 可多选，再次点击可取消选择"
	sess.step = stepSelectService
	return h.replyOrEdit(ctx, u, text, kb)
}

// SelectService toggles one service in or out of the selection.
func (h *Handler) SelectService(ctx context.Context, u chat.Update) error {
	cb := u.Callback
	if cb == nil {
		return nil
	}
	h.answer(ctx, cb.ID, "", false)

	sess := h.sessions.get(cb.ChatID, cb.UserID)
	if sess == nil || sess.step != stepSelectService {
		return nil
	}

	sess.form.Services = toggle(sess.form.Services, cb.Arg)
	h.logger.Info("service toggled", "user_id", cb.UserID, "service", cb.Arg, "selected", sess.form.Services)
	return h.showServiceSelection(ctx, u, sess)
}

// ConfirmServices closes the multi-select. Address-only projects jump
// straight to confirmation, everything else moves on to hash input.
func (h *Handler) ConfirmServices(ctx context.Context, u chat.Update) error {
	cb := u.Callback
	if cb == nil {
		return nil
	}
	sess := h.sessions.get(cb.ChatID, cb.UserID)
	if sess == nil || sess.step != stepSelectService {
		h.answer(ctx, cb.ID, "", false)
		return nil
	}
	if len(sess.form.Services) == 0 {
		h.answer(ctx, cb.ID, "请至少选择一个服务", true)
		return nil
	}
	h.answer(ctx, cb.ID, "", false)
	h.logger.Info("service selection confirmed", "user_id", cb.UserID, "services", sess.form.Services)

	if sess.addressOnly {
		sess.fillPlaceholders()
		return h.showConfirmation(ctx, u, sess)
	}

	text := baseSummary(sess) +
		"✅ 申请发版分支: " + chat.Escape(sess.form.Branch) + "\n" +
		"✅ 申请部署服务: " + chat.Escape(strings.Join(sess.form.Services, ", ")) + "\n" +
		"⏳ 申请发版hash: 请输入（仅单个hash，不支持逗号分隔）"
	sess.step = stepInputHash
	return h.transport.Edit(ctx, cb.ChatID, cb.MessageID, text, nil)
}

func (h *Handler) hashText(ctx context.Context, u chat.Update, sess *session) error {
	hash := strings.TrimSpace(u.Message.Text)
	if hash == "" {
		return h.reply(ctx, u.Message.ChatID, "❌ hash不能为空，请重新输入")
	}
	if strings.ContainsAny(hash, ",，、") {
		return h.reply(ctx, u.Message.ChatID, "❌ 仅支持单个hash，请不要使用逗号分隔多个hash")
	}
	sess.form.Hash = hash
	h.logger.Info("hash entered", "user_id", u.Message.UserID, "hash", hash)
	return h.showContentInput(ctx, u, sess)
}

func (h *Handler) showContentInput(ctx context.Context, u chat.Update, sess *session) error {
	text := baseSummary(sess) +
		"✅ 申请发版分支: " + chat.Escape(sess.form.Branch) + "\n" +
		"✅ 申请部署服务: " + chat.Escape(strings.Join(sess.form.Services, ", ")) + "\n" +
		"✅ 申请发版hash: " + chat.Escape(sess.form.Hash) + "\n" +
		"⏳ 申请发版服务内容: 请输入\n\n" +
		"💡 请在下方输入框中直接输入发版内容，然后发送"
	sess.step = stepInputContent
	return h.replyOrEdit(ctx, u, text, nil)
}

func (h *Handler) contentText(ctx context.Context, u chat.Update, sess *session) error {
	content := strings.TrimSpace(u.Message.Text)
	if content == "" {
		return h.reply(ctx, u.Message.ChatID, "❌ 发版内容不能为空，请重新输入")
	}
	sess.form.Content = content
	h.logger.Info("content entered", "user_id", u.Message.UserID)
	return h.showConfirmation(ctx, u, sess)
}

func (h *Handler) showAddressInput(ctx context.Context, u chat.Update, sess *session) error {
	text := baseSummary(sess) +
		"⏳ 请输入地址（每行一个，多行代表多个地址，勿用逗号）："
	sess.step = stepInputAddress
	return h.replyOrEdit(ctx, u, text, nil)
}

func (h *Handler) addressText(ctx context.Context, u chat.Update, sess *session) error {
	var lines []string
	for _, ln := range strings.Split(u.Message.Text, "\n") {
		if s := strings.TrimSpace(ln); s != "" {
			lines = append(lines, s)
		}
	}
	if len(lines) == 0 {
		return h.reply(ctx, u.Message.ChatID, "❌ 地址不能为空，请每行一个重新输入")
	}
	sess.form.Addresses = lines
	h.logger.Info("addresses entered", "user_id", u.Message.UserID, "count", len(lines))
	sess.fillPlaceholders()
	return h.showConfirmation(ctx, u, sess)
}

// fillPlaceholders stands in "-" for fields the address-only flow never asks.
func (s *session) fillPlaceholders() {
	if s.form.Hash == "" {
		s.form.Hash = "-"
	}
	if s.form.Content == "" {
		s.form.Content = "-"
	}
}

func contains(list []string, item string) bool {
	for _, s := range list {
		if s == item {
			return true
		}
	}
	return false
}

func toggle(list []string, item string) []string {
	for i, s := range list {
		if s == item {
			return append(list[:i], list[i+1:]...)
		}
	}
	return append(list, item)
}
