package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebops/deploybot/workflow"
)

func TestNotifySSOSubmitted(t *testing.T) {
	n, mock, store := newTestNotifier(t)
	ctx := context.Background()
	wf := createWorkflow(t, store)
	require.NoError(t, store.AttachGroupMessages(ctx, wf.ID, workflow.GroupMessages{-1001: 100}))
	wf, err := store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)

	n.NotifySSOSubmitted(ctx, wf, "PI-9000", "2026-01-15 11:01:00", []string{"pre-admin", "pre-api"})

	sent := mock.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "✅ SSO 工单提交成功")
	assert.Contains(t, sent[0].Text, "<code>PI-9000</code>")
	assert.Contains(t, sent[0].Text, "• pre-admin")
	assert.Contains(t, sent[0].Text, "• pre-api")
	assert.Equal(t, 100, sent[0].ReplyTo)
}

func TestNotifySSOSubmitFailedEscapesError(t *testing.T) {
	n, mock, store := newTestNotifier(t)
	ctx := context.Background()
	wf := createWorkflow(t, store)
	require.NoError(t, store.AttachGroupMessages(ctx, wf.ID, workflow.GroupMessages{-1001: 100}))
	wf, err := store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)

	n.NotifySSOSubmitFailed(ctx, wf, "status 500: <html>oops</html>")

	sent := mock.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "❌ SSO 工单提交失败")
	assert.Contains(t, sent[0].Text, "&lt;html&gt;oops&lt;/html&gt;")
}

func TestNotifySSOBuildSuccessMarksNotified(t *testing.T) {
	n, mock, store := newTestNotifier(t)
	ctx := context.Background()
	wf := createWorkflow(t, store)
	require.NoError(t, store.AttachGroupMessages(ctx, wf.ID, workflow.GroupMessages{-1001: 100}))

	build, err := store.CreateSSOBuild(ctx, wf.ID, wf.ID, 555, "", nil, nil)
	require.NoError(t, err)
	require.NoError(t, store.UpdateSSOBuild(ctx, build.BuildID, workflow.BuildStatusSuccess, "pre-admin", nil))
	builds, err := store.GetSSOBuildsByWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, builds, 1)

	require.NoError(t, n.NotifySSOBuild(ctx, builds[0]))

	sent := mock.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "✅ 构建成功")
	assert.Contains(t, sent[0].Text, "pre-admin")
	assert.Contains(t, sent[0].Text, "💡 请研发查看服务启动日志")

	builds, err = store.GetSSOBuildsByWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.True(t, builds[0].Notified)
}

func TestNotifySSOBuildFailureMentionsOps(t *testing.T) {
	n, mock, store := newTestNotifier(t)
	ctx := context.Background()
	wf := createWorkflow(t, store)
	require.NoError(t, store.AttachGroupMessages(ctx, wf.ID, workflow.GroupMessages{-1001: 100}))

	build, err := store.CreateSSOBuild(ctx, wf.ID, wf.ID, 556, "", nil, nil)
	require.NoError(t, err)
	require.NoError(t, store.UpdateSSOBuild(ctx, build.BuildID, workflow.BuildStatusFailure, "pre-api", nil))
	builds, err := store.GetSSOBuildsByWorkflow(ctx, wf.ID)
	require.NoError(t, err)

	require.NoError(t, n.NotifySSOBuild(ctx, builds[0]))

	sent := mock.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "❌ 构建失败")
	assert.Contains(t, sent[0].Text, "@ops_lead @ops_backup 请查看日志")
}

func TestNotifyJenkinsBuild(t *testing.T) {
	n, mock, store := newTestNotifier(t)
	ctx := context.Background()
	wf := createWorkflow(t, store)
	require.NoError(t, store.AttachGroupMessages(ctx, wf.ID, workflow.GroupMessages{-1001: 100}))

	num := int64(42)
	params := workflow.BuildParameters{"action_type": "gray", "gitBranch": "uat-ebpay", "check_commitID": "abc123"}
	build, err := store.CreateJenkinsBuild(ctx, wf.ID, "UAT/pre-admin", &num, nil, params, workflow.BuildStatusBuilding)
	require.NoError(t, err)
	duration := int64(200_000) // ms
	require.NoError(t, store.UpdateJenkinsBuild(ctx, build.BuildID, workflow.BuildStatusSuccess, &duration, nil))
	stored, err := store.GetJenkinsBuild(ctx, build.BuildID)
	require.NoError(t, err)

	require.NoError(t, n.NotifyJenkinsBuild(ctx, stored))

	sent := mock.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "✅ 工作流已通过 — UAT/pre-admin#42 服务部署完成。")
	assert.Contains(t, sent[0].Text, "<code>abc123</code>")
	assert.Contains(t, sent[0].Text, "3分20秒")

	stored, err = store.GetJenkinsBuild(ctx, build.BuildID)
	require.NoError(t, err)
	assert.True(t, stored.Notified)
}

func TestNotifyJenkinsBuildFailureMentionsOps(t *testing.T) {
	n, mock, store := newTestNotifier(t)
	ctx := context.Background()
	wf := createWorkflow(t, store)
	require.NoError(t, store.AttachGroupMessages(ctx, wf.ID, workflow.GroupMessages{-1001: 100}))

	build, err := store.CreateJenkinsBuild(ctx, wf.ID, "UAT/pre-api", nil, nil, nil, workflow.BuildStatusBuilding)
	require.NoError(t, err)
	require.NoError(t, store.UpdateJenkinsBuild(ctx, build.BuildID, workflow.BuildStatusFailure, nil, nil))
	stored, err := store.GetJenkinsBuild(ctx, build.BuildID)
	require.NoError(t, err)

	require.NoError(t, n.NotifyJenkinsBuild(ctx, stored))

	sent := mock.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "❌ 工作流已通过 — UAT/pre-api 服务构建失败。")
	assert.Contains(t, sent[0].Text, "@ops_lead @ops_backup 请查看日志")
}

func TestSweepPendingDeliversAndMarks(t *testing.T) {
	n, mock, store := newTestNotifier(t)
	ctx := context.Background()
	wf := createWorkflow(t, store)
	require.NoError(t, store.AttachGroupMessages(ctx, wf.ID, workflow.GroupMessages{-1001: 100}))

	ssoBuild, err := store.CreateSSOBuild(ctx, wf.ID, wf.ID, 777, "", nil, nil)
	require.NoError(t, err)
	require.NoError(t, store.UpdateSSOBuild(ctx, ssoBuild.BuildID, workflow.BuildStatusSuccess, "pre-admin", nil))

	jb, err := store.CreateJenkinsBuild(ctx, wf.ID, "UAT/pre-api", nil, nil, nil, workflow.BuildStatusBuilding)
	require.NoError(t, err)
	require.NoError(t, store.UpdateJenkinsBuild(ctx, jb.BuildID, workflow.BuildStatusAborted, nil, nil))

	delivered, err := n.SweepPending(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
	assert.Len(t, mock.Sent(), 2)

	// Everything is marked, so a second sweep is a no-op.
	mock.Reset()
	delivered, err = n.SweepPending(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, delivered)
	assert.Empty(t, mock.Sent())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0分45秒", formatDuration(45))
	assert.Equal(t, "3分20秒", formatDuration(200))
	assert.Equal(t, "未知", formatDuration(-1))
}

func TestSubstituteLeavesUnknownPlaceholders(t *testing.T) {
	got := substitute("id={workflow_id} x={unknown}", templateValues{WorkflowID: "WF-1"})
	assert.Equal(t, "id=WF-1 x={unknown}", got)
}
