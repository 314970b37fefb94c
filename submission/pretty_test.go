package submission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrettyEmpty(t *testing.T) {
	assert.Equal(t, "无", Pretty("", false))
}

func TestPrettySingleServiceSingleHash(t *testing.T) {
	data := "申请时间: 2024-01-01 10:00:00\n" +
		"申请项目: EBPAY\n" +
		"申请环境: UAT\n" +
		"申请发版分支: uat-ebpay\n" +
		"申请部署服务: pre-admin-export\n" +
		"申请发版hash: abc123\n" +
		"申请发版服务内容: 修复bug"

	want := "🕐 申请时间: 2024-01-01 10:00:00\n" +
		"📦 申请项目: EBPAY\n" +
		"🌍 申请环境: UAT\n" +
		"🌿 申请发版分支: uat-ebpay\n" +
		"🚀 申请部署服务: pre-admin-export\n" +
		"🔑 申请发版hash: <b>abc123</b>\n" +
		"📝 申请发版服务内容: 修复bug"

	assert.Equal(t, want, Pretty(data, false))
}

func TestPrettyPairedServicesAndHashes(t *testing.T) {
	data := "申请部署服务: svc-a, svc-b\n申请发版hash: h1, h2"

	want := "🌿 申请发版分支: uat-ebpay\n" +
		"🚀 申请部署服务及hash:\n" +
		"   • svc-a: <b>h1</b>\n" +
		"   • svc-b: <b>h2</b>"

	assert.Equal(t, want, Pretty(data, false))
}

func TestPrettySingleHashManyServices(t *testing.T) {
	data := "申请部署服务: svc-a, svc-b\n申请发版hash: h1"
	got := Pretty(data, false)
	assert.Contains(t, got, "🔑 申请发版hash: <b>h1</b>")
	assert.NotContains(t, got, "🚀")
}

func TestPrettyMismatchedCounts(t *testing.T) {
	data := "申请部署服务: svc-a\n申请发版hash: h1, h2, h3"

	want := "🌿 申请发版分支: uat-ebpay\n" +
		"🔑 申请发版hash:\n" +
		"   • <b>h1</b>\n" +
		"   • <b>h2</b>\n" +
		"   • <b>h3</b>"

	assert.Equal(t, want, Pretty(data, false))
}

func TestPrettyAddressOnly(t *testing.T) {
	data := "申请时间: 2024-01-01 10:00:00\n" +
		"申请项目: 链接节点地址\n" +
		"申请环境: TRC\n" +
		"申请新增地址:\nTAbc123\nTDef456"

	want := "🕐 申请时间: 2024-01-01 10:00:00\n" +
		"📦 申请项目: 链接节点地址\n" +
		"🌍 申请环境: TRC\n" +
		"🏷 申请新增地址:\n" +
		"   • TAbc123\n" +
		"   • TDef456"

	assert.Equal(t, want, Pretty(data, true))
}

func TestPrettyAddressOnlyRawFallback(t *testing.T) {
	// No recognisable labels and no addresses: the raw text passes through.
	assert.Equal(t, "随便写的文字", Pretty("随便写的文字", true))
}

func TestPrettyJSONObject(t *testing.T) {
	data := `{"project": "EBPAY", "env": "UAT", "count": 3}`
	want := "project: EBPAY\nenv: UAT\ncount: 3"
	assert.Equal(t, want, Pretty(data, false))
}

func TestPrettyJSONNonObject(t *testing.T) {
	assert.Equal(t, "[1, 2]", Pretty("[1, 2]", false))
}

func TestPrettyUnlabelledTextKeepsDefaultBranchLine(t *testing.T) {
	// Free-form text still renders the assumed branch in release mode.
	assert.Equal(t, "🌿 申请发版分支: uat-ebpay", Pretty("随便写的文字", false))
}

func TestPrettyEscapesUserFragments(t *testing.T) {
	data := "申请部署服务: svc<a>\n申请发版hash: h&1"

	want := "🌿 申请发版分支: uat-ebpay\n" +
		"🚀 申请部署服务: svc&lt;a&gt;\n" +
		"🔑 申请发版hash: <b>h&amp;1</b>"

	assert.Equal(t, want, Pretty(data, false))
}
