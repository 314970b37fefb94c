// Package submission defines the canonical text format of a deployment
// request. The form engine renders a Form into this format, the release
// orchestrators parse it back into structured fields, and the notifier
// beautifies it for chat display. The text itself is the contract: it is
// what reviewers read in the approval message and what gets persisted on
// the workflow row.
package submission

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ebops/deploybot/workflow"
)

// MaxLength caps submission text at 5000 characters (runes, not bytes).
const MaxLength = 5000

var (
	// ErrEmpty is returned for blank submission text.
	ErrEmpty = errors.New("提交内容不能为空")
	// ErrTooLong is returned when the text exceeds MaxLength characters.
	ErrTooLong = errors.New("提交内容过长，请控制在5000字符以内")
)

// Validate checks user-supplied submission text before a workflow is created.
func Validate(data string) error {
	if strings.TrimSpace(data) == "" {
		return ErrEmpty
	}
	if utf8.RuneCountInString(data) > MaxLength {
		return ErrTooLong
	}
	return nil
}

// Form holds the answers collected by the conversation engine. Zero values
// are rendered with placeholders so the output shape stays stable.
type Form struct {
	// ApplyTime is the wall-clock time the form was opened, already in the
	// workflow timestamp layout.
	ApplyTime   string
	Project     string
	Environment string
	// Branch is resolved from project options before rendering; "main"
	// stands in when nothing was configured.
	Branch   string
	Services []string
	// Addresses is only populated for address-only projects, one entry per
	// input line.
	Addresses []string
	Hash      string
	Content   string
	// TemplateType selects between the release layout and the address-only
	// layout.
	TemplateType workflow.TemplateType
}

// Format renders the canonical submission text. Address-only projects get a
// reduced layout without branch, services, hash or content.
func Format(f Form) string {
	addresses := "无"
	if len(f.Addresses) > 0 {
		addresses = strings.Join(f.Addresses, "\n")
	}

	if f.TemplateType == workflow.TemplateAddressOnly {
		return fmt.Sprintf(
			"申请时间: %s\n申请项目: %s\n申请环境: %s\n申请新增地址:\n%s",
			f.ApplyTime, f.Project, f.Environment, addresses,
		)
	}

	branch := f.Branch
	if branch == "" {
		branch = "main"
	}
	hash := f.Hash
	if hash == "" {
		hash = "-"
	}
	content := f.Content
	if content == "" {
		content = "-"
	}

	return fmt.Sprintf(
		"申请时间: %s\n申请项目: %s\n申请环境: %s\n申请发版分支: %s\n申请部署服务: %s\n申请链路地址: %s\n申请发版hash: %s\n申请发版服务内容: %s",
		f.ApplyTime, f.Project, f.Environment, branch,
		strings.Join(f.Services, ", "), addresses, hash, content,
	)
}
