package submission

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	data := "申请时间: 2024-01-01 10:00:00\n" +
		"申请项目: EBPAY\n" +
		"申请环境: UAT\n" +
		"申请部署服务: pre-admin-export, pre-adminmanager\n" +
		"申请发版hash: abc123, def456\n" +
		"申请发版服务内容: 修复bug"

	fields := Parse(data)

	if fields.ApplyTime != "2024-01-01 10:00:00" {
		t.Errorf("ApplyTime = %q", fields.ApplyTime)
	}
	if fields.Project != "EBPAY" {
		t.Errorf("Project = %q", fields.Project)
	}
	if fields.Environment != "UAT" {
		t.Errorf("Environment = %q", fields.Environment)
	}
	if want := []string{"pre-admin-export", "pre-adminmanager"}; !reflect.DeepEqual(fields.Services, want) {
		t.Errorf("Services = %v, want %v", fields.Services, want)
	}
	if want := []string{"abc123", "def456"}; !reflect.DeepEqual(fields.Hashes, want) {
		t.Errorf("Hashes = %v, want %v", fields.Hashes, want)
	}
	if fields.Branch != DefaultBranch {
		t.Errorf("Branch = %q, want default %q", fields.Branch, DefaultBranch)
	}
	if fields.Content != "修复bug" {
		t.Errorf("Content = %q", fields.Content)
	}
}

func TestParseSeparators(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []string
	}{
		{
			name: "fullwidth comma",
			data: "申请部署服务: svc-a，svc-b",
			want: []string{"svc-a", "svc-b"},
		},
		{
			name: "enumeration comma",
			data: "申请部署服务: svc-a、svc-b、svc-c",
			want: []string{"svc-a", "svc-b", "svc-c"},
		},
		{
			name: "mixed separators with spaces",
			data: "申请部署服务: svc-a ，svc-b , svc-c",
			want: []string{"svc-a", "svc-b", "svc-c"},
		},
		{
			name: "fullwidth colon label",
			data: "申请部署服务：svc-a",
			want: []string{"svc-a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := Parse(tt.data)
			if !reflect.DeepEqual(fields.Services, tt.want) {
				t.Errorf("Services = %v, want %v", fields.Services, tt.want)
			}
		})
	}
}

func TestParseBranch(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{name: "explicit", data: "申请发版分支: feature/x", want: "feature/x"},
		{name: "missing falls back", data: "申请项目: EBPAY", want: DefaultBranch},
		{name: "empty text falls back", data: "", want: DefaultBranch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if fields := Parse(tt.data); fields.Branch != tt.want {
				t.Errorf("Branch = %q, want %q", fields.Branch, tt.want)
			}
		})
	}
}

func TestParseContentStopsAtLineEnd(t *testing.T) {
	data := "申请发版服务内容: 第一行内容\n申请发版hash: abc123"
	fields := Parse(data)
	if fields.Content != "第一行内容" {
		t.Errorf("Content = %q, want first line only", fields.Content)
	}
}

func TestParseAddresses(t *testing.T) {
	data := "申请时间: 2024-01-01 10:00:00\n" +
		"申请项目: 链接节点地址\n" +
		"申请环境: TRC\n" +
		"申请新增地址:\nTAbc123\n\n  TDef456  "

	fields := Parse(data)
	if want := []string{"TAbc123", "TDef456"}; !reflect.DeepEqual(fields.Addresses, want) {
		t.Errorf("Addresses = %v, want %v", fields.Addresses, want)
	}
}

func TestParseUnlabelledText(t *testing.T) {
	fields := Parse("随便写点什么")
	if fields.Project != "" || fields.Environment != "" || len(fields.Services) != 0 || len(fields.Hashes) != 0 {
		t.Errorf("Parse of unlabelled text should leave fields empty, got %+v", fields)
	}
}
