// Package notify posts approval requests to chat groups, rewrites them on
// terminal decisions, and reply-threads build progress beneath the root
// approval message. All outgoing text is HTML and every user-controlled
// value is escaped before substitution.
package notify

import "github.com/ebops/deploybot/workflow"

// Template keys as stored in message_templates. The pending keys double as
// the template type names.
const (
	TemplateKeyPending            = "default"
	TemplateKeyPendingAddressOnly = "address_only"
	TemplateKeyApproved           = "approved_default"
	TemplateKeyApprovedAddress    = "approved_address_only"
	TemplateKeyRejected           = "rejected_default"
	TemplateKeyRejectedAddress    = "rejected_address_only"
)

// ssoTrailer is the "submitting to SSO" block carried by the stored
// approved template. It is stripped unconditionally when rendering.
const ssoTrailer = "\n━━━━━━━━━━━━━━━━━━━━\n🚀 正在提交到 SSO 系统\n━━━━━━━━━━━━━━━━━━━━"

const pendingTemplate = `━━━━━━━━━━━━━━━━━━━━
📋 工作流审批请求
━━━━━━━━━━━━━━━━━━━━

🆔 工作流ID: <code>{workflow_id}</code>
👤 提交人: @{username}
📅 提交时间: {created_at}

━━━━━━━━━━━━━━━━━━━━
📝 申请详情
━━━━━━━━━━━━━━━━━━━━

{submission_data}

━━━━━━━━━━━━━━━━━━━━
⏳ 状态: {status}
━━━━━━━━━━━━━━━━━━━━

{approver_username} 请审批`

const approvedTemplate = `━━━━━━━━━━━━━━━━━━━━
✅ 工作流已通过
━━━━━━━━━━━━━━━━━━━━

🆔 工作流ID: <code>{workflow_id}</code>
👤 提交人: @{username}
✅ 审批人: @{approver_username}
📅 审批时间: {approval_time}

━━━━━━━━━━━━━━━━━━━━
📝 申请详情
━━━━━━━━━━━━━━━━━━━━

{submission_data}

━━━━━━━━━━━━━━━━━━━━
🚀 正在提交到 SSO 系统
━━━━━━━━━━━━━━━━━━━━`

const rejectedTemplate = `━━━━━━━━━━━━━━━━━━━━
❌ 工作流已拒绝
━━━━━━━━━━━━━━━━━━━━

🆔 工作流ID: {workflow_id}
👤 提交人: @{username}
❌ 审批人: @{approver_username}
📅 审批时间: {approval_time}

申请发版服务
{submission_data}

💬 审批意见: {approval_comment}`

const pendingAddressTemplate = `━━━━━━━━━━━━━━━━━━━━
📋 链接节点地址审批请求
━━━━━━━━━━━━━━━━━━━━

🆔 工作流ID: <code>{workflow_id}</code>
👤 提交人: @{username}
📅 提交时间: {created_at}

━━━━━━━━━━━━━━━━━━━━
📝 申请新增地址
━━━━━━━━━━━━━━━━━━━━

{submission_data}

━━━━━━━━━━━━━━━━━━━━
⏳ 状态: {status}
━━━━━━━━━━━━━━━━━━━━

{approver_username} 请审批`

const approvedAddressTemplate = `━━━━━━━━━━━━━━━━━━━━
✅ 链接节点地址已通过
━━━━━━━━━━━━━━━━━━━━

🆔 工作流ID: <code>{workflow_id}</code>
👤 提交人: @{username}
✅ 审批人: @{approver_username}
📅 审批时间: {approval_time}

━━━━━━━━━━━━━━━━━━━━
📝 申请新增地址
━━━━━━━━━━━━━━━━━━━━

{submission_data}
`

const rejectedAddressTemplate = `━━━━━━━━━━━━━━━━━━━━
❌ 链接节点地址已拒绝
━━━━━━━━━━━━━━━━━━━━

🆔 工作流ID: {workflow_id}
👤 提交人: @{username}
❌ 审批人: @{approver_username}
📅 审批时间: {approval_time}

申请新增地址
{submission_data}

💬 审批意见: {approval_comment}`

// DefaultTemplates returns the built-in template set keyed for seeding into
// message_templates. Operators edit the stored rows; the built-ins only
// cover rows that are missing.
func DefaultTemplates() map[string]string {
	return map[string]string{
		TemplateKeyPending:            pendingTemplate,
		TemplateKeyPendingAddressOnly: pendingAddressTemplate,
		TemplateKeyApproved:           approvedTemplate,
		TemplateKeyApprovedAddress:    approvedAddressTemplate,
		TemplateKeyRejected:           rejectedTemplate,
		TemplateKeyRejectedAddress:    rejectedAddressTemplate,
	}
}

// pendingKey returns the template key for an open approval request.
func pendingKey(t workflow.TemplateType) string {
	if t == workflow.TemplateAddressOnly {
		return TemplateKeyPendingAddressOnly
	}
	return TemplateKeyPending
}

// resultKey returns the template key for a terminal decision message.
func resultKey(status workflow.Status, t workflow.TemplateType) string {
	address := t == workflow.TemplateAddressOnly
	if status == workflow.StatusRejected {
		if address {
			return TemplateKeyRejectedAddress
		}
		return TemplateKeyRejected
	}
	if address {
		return TemplateKeyApprovedAddress
	}
	return TemplateKeyApproved
}
