package apisync

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebops/deploybot/config"
	"github.com/ebops/deploybot/storage"
	"github.com/ebops/deploybot/workflow"
)

func newTestSyncer(t *testing.T, baseURL string) (*Syncer, *storage.Store) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "workflows.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.SetConfig(ctx, config.KeyAPIBaseURL, baseURL))
	require.NoError(t, store.SetConfig(ctx, config.KeyAPIToken, "secret-token"))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(config.NewApp(store), store, logger)
	s.newClient = func(context.Context, time.Duration) (*http.Client, error) {
		return &http.Client{Timeout: 5 * time.Second}, nil
	}
	return s, store
}

func decidedWorkflow(t *testing.T, store *storage.Store) *workflow.Workflow {
	t.Helper()
	ctx := context.Background()
	wf, err := store.CreateWorkflow(ctx, 7, "alice", "申请项目: zpay", "zpay", workflow.TemplateDefault)
	require.NoError(t, err)
	won, err := store.TransitionStatus(ctx, wf.ID, workflow.StatusPending, workflow.StatusApproved, workflow.Approval{
		ApproverID:       9,
		ApproverUsername: "boss",
		Time:             "2026-01-15 11:00:00",
		Comment:          "已通过",
	})
	require.NoError(t, err)
	require.True(t, won)
	got, err := store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	return got
}

func TestPushMarksSynced(t *testing.T) {
	var gotBody map[string]any
	var gotAuth, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s, store := newTestSyncer(t, server.URL)
	wf := decidedWorkflow(t, store)

	assert.True(t, s.Push(context.Background(), wf))

	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, wf.ID, gotBody["workflow_id"])
	assert.Equal(t, "alice", gotBody["username"])
	assert.Equal(t, "approved", gotBody["status"])
	assert.Equal(t, "已通过", gotBody["approval_comment"])

	got, err := store.GetWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.True(t, got.SyncedToAPI)
}

func TestPushSwallowsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	s, store := newTestSyncer(t, server.URL)
	wf := decidedWorkflow(t, store)

	assert.False(t, s.Push(context.Background(), wf))

	got, err := store.GetWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.False(t, got.SyncedToAPI)
}

func TestPushDisabledIsNoOp(t *testing.T) {
	s, store := newTestSyncer(t, "")
	wf := decidedWorkflow(t, store)

	assert.False(t, s.Push(context.Background(), wf))

	got, err := store.GetWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.False(t, got.SyncedToAPI)
}

func TestPushJoinsURLSlashes(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	s, store := newTestSyncer(t, server.URL+"/")
	require.NoError(t, store.SetConfig(context.Background(), config.KeyAPIEndpoint, "/v2/workflows/sync"))
	wf := decidedWorkflow(t, store)

	assert.True(t, s.Push(context.Background(), wf))
	assert.Equal(t, "/v2/workflows/sync", gotPath)
}
