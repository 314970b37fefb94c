package sso

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ebops/deploybot/workflow"
)

// OrderParameters is the per-service build parameter block inside a ticket.
// Gray deployments never carry a branch or rollback version.
type OrderParameters struct {
	CheckCommitID string `json:"check_commitID"`
	ActionType    string `json:"action_type"`
	GitBranch     string `json:"gitBranch"`
	CanRollback   string `json:"canRollback"`
	RollbackVer   string `json:"rollback_ver"`
}

// OrderItem is one service release inside a ticket. JobID keeps the raw
// JSON value the remote returned so its original type survives the
// round-trip back into the ticket.
type OrderItem struct {
	ProjectName string          `json:"project_name"`
	Env         string          `json:"env"`
	JobID       json.RawMessage `json:"job_id"`
	Name        string          `json:"name"`
	Parameters  OrderParameters `json:"parameters"`
}

// DetailSection is one ordered list of ticket form fields. Entries carry
// irregular key sets (a bare status marker, id/name/value rows, and the
// application block), so they stay loosely typed.
type DetailSection []map[string]any

// Ticket is a dcAutoReleaseProcess release request. The remote API expects
// the detail field re-serialised as a JSON string; SubmitTicket handles
// that, Ticket itself marshals it as a plain array for storage.
type Ticket struct {
	Detail         []DetailSection `json:"detail"`
	DraftID        string          `json:"draftId"`
	EndType        string          `json:"endType"`
	ProcessStatus  string          `json:"processStatus"`
	PublishVersion string          `json:"publishVersion"`
	Title          string          `json:"title"`
	Type           string          `json:"type"`
	UserID         string          `json:"userId"`
}

// TicketRequest carries everything needed to compose a release ticket.
// Services, Hashes, and JobIDs are parallel lists mapped by index.
type TicketRequest struct {
	Project      string
	Environment  string
	Services     []string
	Hashes       []string
	JobIDs       []json.RawMessage
	ApproverMail string
}

// BuildTicket composes the release ticket for a gray deployment. Most form
// fields are fixed boilerplate the downstream workflow engine requires; the
// variable parts are the project, the per-service order list, and the
// approver recorded as the ticket's reviewer.
func BuildTicket(req TicketRequest, now time.Time) (*Ticket, error) {
	if len(req.Services) != len(req.Hashes) {
		return nil, fmt.Errorf("service count %d does not match hash count %d", len(req.Services), len(req.Hashes))
	}
	if len(req.Services) != len(req.JobIDs) {
		return nil, fmt.Errorf("service count %d does not match job id count %d", len(req.Services), len(req.JobIDs))
	}

	// The downstream expects each service wrapped in its own single-item
	// list under children, with account_data as the flat mirror.
	orders := make([][]OrderItem, 0, len(req.Services))
	accounts := make([]OrderItem, 0, len(req.Services))
	for i, service := range req.Services {
		item := OrderItem{
			ProjectName: req.Project,
			Env:         req.Environment,
			JobID:       req.JobIDs[i],
			Name:        service,
			Parameters: OrderParameters{
				CheckCommitID: req.Hashes[i],
				ActionType:    "gray",
				CanRollback:   "不支持",
			},
		}
		orders = append(orders, []OrderItem{item})
		accounts = append(accounts, item)
	}

	section := DetailSection{
		{"status": "申请详情"},
		field("projectName", "项目名称", req.Project),
		field("releaseType", "发布类型", "常规发布"),
		field("category", "依赖业务", ""),
		field("environment", "上线环境", "预发环境"),
		field("releaseTime", "上线时间", workflow.Timestamp(now)),
		field("repository", "仓库地址", ""),
		field("codeBranch", "代码分支", ""),
		field("onlineVersion", "上线版本", "上线版本"),
		field("onlineMD5", "MD5", "MD5"),
		field("updateContent", "更新内容", "更新内容"),
		field("sqlUpdate", "SQL更新", false),
		field("configUpdate", "配置文件更新", false),
		field("affectScope", "影响范围", "影响范围"),
		field("rollbackInstructions", "回滚说明", ""),
		field("releaseProcess", "发布流程", "发布流程"),
		field("mainBusiness", "是否主线业务", false),
		field("needTest", "是否需要测试", false),
		field("upload", "SQL脚本", ""),
		field("ifUploadJT", "截图审批", false),
		field("sourceRemark", "备注", "备注"),
		{
			"id":           "application",
			"name":         "发布应用",
			"children":     orders,
			"account_data": accounts,
			"job_status":   true,
		},
		field("approver", "审批人", req.ApproverMail),
	}

	return &Ticket{
		Detail:         []DetailSection{section},
		EndType:        "0",
		ProcessStatus:  "0",
		PublishVersion: "0",
		Title:          req.Project + "预发发版",
		Type:           "dcAutoReleaseProcess",
		UserID:         "10572",
	}, nil
}

func field(id, name string, value any) map[string]any {
	return map[string]any{"id": id, "name": name, "value": value}
}
