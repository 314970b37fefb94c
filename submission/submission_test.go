package submission

import (
	"strings"
	"testing"

	"github.com/ebops/deploybot/workflow"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{name: "empty", data: "", wantErr: ErrEmpty},
		{name: "whitespace only", data: "  \n\t ", wantErr: ErrEmpty},
		{name: "at limit", data: strings.Repeat("字", MaxLength), wantErr: nil},
		{name: "over limit counts runes not bytes", data: strings.Repeat("字", MaxLength+1), wantErr: ErrTooLong},
		{name: "normal", data: "申请项目: EBPAY", wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate(tt.data); err != tt.wantErr {
				t.Errorf("Validate(%q) = %v, want %v", tt.data, err, tt.wantErr)
			}
		})
	}
}

func TestFormatDefault(t *testing.T) {
	form := Form{
		ApplyTime:    "2024-01-31 10:00:00",
		Project:      "EBPAY",
		Environment:  "UAT",
		Branch:       "uat-ebpay",
		Services:     []string{"pre-admin-export", "pre-adminmanager"},
		Hash:         "abc123",
		Content:      "修复bug",
		TemplateType: workflow.TemplateDefault,
	}

	want := "申请时间: 2024-01-31 10:00:00\n" +
		"申请项目: EBPAY\n" +
		"申请环境: UAT\n" +
		"申请发版分支: uat-ebpay\n" +
		"申请部署服务: pre-admin-export, pre-adminmanager\n" +
		"申请链路地址: 无\n" +
		"申请发版hash: abc123\n" +
		"申请发版服务内容: 修复bug"

	if got := Format(form); got != want {
		t.Errorf("Format() =\n%s\nwant\n%s", got, want)
	}
}

func TestFormatPlaceholders(t *testing.T) {
	form := Form{
		ApplyTime:    "2024-01-31 10:00:00",
		Project:      "EBPAY",
		Environment:  "UAT",
		Services:     []string{"pre-admin-export"},
		TemplateType: workflow.TemplateDefault,
	}

	got := Format(form)
	for _, line := range []string{"申请发版分支: main", "申请发版hash: -", "申请发版服务内容: -"} {
		if !strings.Contains(got, line) {
			t.Errorf("Format() missing %q in\n%s", line, got)
		}
	}
}

func TestFormatAddressOnly(t *testing.T) {
	form := Form{
		ApplyTime:    "2024-01-31 10:00:00",
		Project:      "链接节点地址",
		Environment:  "TRC",
		Addresses:    []string{"TAbc123", "TDef456"},
		TemplateType: workflow.TemplateAddressOnly,
	}

	want := "申请时间: 2024-01-31 10:00:00\n" +
		"申请项目: 链接节点地址\n" +
		"申请环境: TRC\n" +
		"申请新增地址:\nTAbc123\nTDef456"

	if got := Format(form); got != want {
		t.Errorf("Format() =\n%s\nwant\n%s", got, want)
	}
}

func TestFormatAddressOnlyEmpty(t *testing.T) {
	form := Form{TemplateType: workflow.TemplateAddressOnly}
	if got := Format(form); !strings.HasSuffix(got, "申请新增地址:\n无") {
		t.Errorf("Format() = %q, want 无 placeholder for empty address list", got)
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	form := Form{
		ApplyTime:    "2024-01-31 10:00:00",
		Project:      "EBPAY",
		Environment:  "GRAY-UAT",
		Branch:       "feature/pay-fix",
		Services:     []string{"pre-admin-export", "pre-adminmanager"},
		Hash:         "abc123",
		Content:      "修复支付回调",
		TemplateType: workflow.TemplateDefault,
	}

	fields := Parse(Format(form))

	if fields.ApplyTime != form.ApplyTime {
		t.Errorf("ApplyTime = %q, want %q", fields.ApplyTime, form.ApplyTime)
	}
	if fields.Project != form.Project {
		t.Errorf("Project = %q, want %q", fields.Project, form.Project)
	}
	if fields.Environment != form.Environment {
		t.Errorf("Environment = %q, want %q", fields.Environment, form.Environment)
	}
	if fields.Branch != form.Branch {
		t.Errorf("Branch = %q, want %q", fields.Branch, form.Branch)
	}
	if len(fields.Services) != 2 || fields.Services[0] != "pre-admin-export" || fields.Services[1] != "pre-adminmanager" {
		t.Errorf("Services = %v", fields.Services)
	}
	if len(fields.Hashes) != 1 || fields.Hashes[0] != "abc123" {
		t.Errorf("Hashes = %v", fields.Hashes)
	}
	if fields.Content != form.Content {
		t.Errorf("Content = %q, want %q", fields.Content, form.Content)
	}
}

func TestFormatParseRoundTripAddressOnly(t *testing.T) {
	form := Form{
		ApplyTime:    "2024-01-31 10:00:00",
		Project:      "链接节点地址",
		Environment:  "ETH",
		Addresses:    []string{"0xabc", "0xdef"},
		TemplateType: workflow.TemplateAddressOnly,
	}

	fields := Parse(Format(form))

	if fields.Project != form.Project {
		t.Errorf("Project = %q, want %q", fields.Project, form.Project)
	}
	if len(fields.Addresses) != 2 || fields.Addresses[0] != "0xabc" || fields.Addresses[1] != "0xdef" {
		t.Errorf("Addresses = %v", fields.Addresses)
	}
	if len(fields.Services) != 0 || len(fields.Hashes) != 0 {
		t.Errorf("Services = %v, Hashes = %v, want none", fields.Services, fields.Hashes)
	}
}
