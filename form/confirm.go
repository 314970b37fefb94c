package form

import (
	"context"
	"strings"

	"github.com/ebops/deploybot/chat"
	"github.com/ebops/deploybot/submission"
)

// showConfirmation posts the assembled request as a new message with the
// submit and cancel buttons, after a last completeness check.
func (h *Handler) showConfirmation(ctx context.Context, u chat.Update, sess *session) error {
	if len(sess.form.Services) == 0 {
		h.logger.Error("no services selected at confirmation", "user_id", u.UserID())
		h.endSession(u)
		return h.reply(ctx, u.ChatID(), "❌ 请至少选择一个服务")
	}
	if missing := sess.missingFields(); len(missing) > 0 {
		h.logger.Error("form incomplete at confirmation", "user_id", u.UserID(), "missing", missing)
		h.endSession(u)
		return h.reply(ctx, u.ChatID(), "❌ 表单数据不完整，缺少: "+strings.Join(missing, ", "))
	}

	kb := chat.Keyboard{chat.Row(
		chat.Btn("✅ 确认提交", chat.ActionConfirmForm, ""),
		chat.Btn("❌ 取消", chat.ActionCancelForm, ""),
	)}
	text := "📋 请确认您的申请信息：\n\n" + chat.Escape(submission.Format(sess.form))
	sess.step = stepConfirm
	_, err := h.transport.Send(ctx, chat.Message{ChatID: u.ChatID(), Text: text, Keyboard: kb})
	return err
}

// Confirm handles the submit button: it renders the canonical submission
// text and hands it to the dispatcher, which reports success or failure to
// the user on its own messages.
func (h *Handler) Confirm(ctx context.Context, u chat.Update) error {
	cb := u.Callback
	if cb == nil {
		return nil
	}
	h.answer(ctx, cb.ID, "", false)

	sess := h.sessions.get(cb.ChatID, cb.UserID)
	if sess == nil || sess.step != stepConfirm {
		return h.transport.Edit(ctx, cb.ChatID, cb.MessageID, "❌ 表单数据丢失，请重新提交", nil)
	}

	data := submission.Format(sess.form)
	if err := h.transport.Edit(ctx, cb.ChatID, cb.MessageID, "⏳ 正在提交工作流...", nil); err != nil {
		h.logger.Warn("progress edit failed", "chat_id", cb.ChatID, "error", err)
	}

	ok := h.submitter.Submit(ctx, SubmitRequest{
		ChatID:       cb.ChatID,
		UserID:       cb.UserID,
		Username:     cb.Username,
		Project:      sess.form.Project,
		TemplateType: sess.form.TemplateType,
		Data:         data,
	})
	h.endSession(u)
	if !ok {
		return h.transport.Edit(ctx, cb.ChatID, cb.MessageID, "❌ 提交失败，请重试", nil)
	}
	return nil
}

// CancelForm handles the cancel button on the confirmation message.
func (h *Handler) CancelForm(ctx context.Context, u chat.Update) error {
	cb := u.Callback
	if cb == nil {
		return nil
	}
	h.answer(ctx, cb.ID, "", false)

	sess := h.sessions.get(cb.ChatID, cb.UserID)
	if sess == nil || sess.step != stepConfirm {
		return nil
	}
	h.endSession(u)
	h.logger.Info("form submission cancelled", "user_id", cb.UserID)
	return h.transport.Edit(ctx, cb.ChatID, cb.MessageID, "❌ 已取消提交", nil)
}
