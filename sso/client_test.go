package sso

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebops/deploybot/config"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := NewClient(config.SSOSettings{
		Enabled:       true,
		URL:           serverURL,
		AuthToken:     "tok-123",
		Authorization: "auth-456",
	}, nil, logger)
	require.NoError(t, err)
	return client
}

func TestJobIDsPicksFirstMatchPreservingOrder(t *testing.T) {
	var gotPath, gotEnv, gotProjects, gotAuthToken, gotAuthorization string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotEnv = r.URL.Query().Get("env")
		gotProjects = r.URL.Query().Get("projects")
		gotAuthToken = r.Header.Get("Auth-token")
		gotAuthorization = r.Header.Get("Authorization")
		io.WriteString(w, `{"data":[
			{"jobId":"7","jobName":"uat/pre-api-gateway"},
			{"jobId":"3","jobName":"uat/pre-admin"},
			{"jobId":"9","jobName":"uat/pre-admin-export"}
		]}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ids, err := client.JobIDs(context.Background(), "zpay", "UAT", []string{"pre-admin", "pre-api"})
	require.NoError(t, err)

	assert.Equal(t, "/api/publish3/publish/jenkinsJob/queryOaSameJob", gotPath)
	assert.Equal(t, "UAT", gotEnv)
	assert.Equal(t, "zpay", gotProjects)
	assert.Equal(t, "tok-123", gotAuthToken)
	assert.Equal(t, "auth-456", gotAuthorization)

	require.Len(t, ids, 2)
	assert.Equal(t, `"3"`, string(ids[0]))
	assert.Equal(t, `"7"`, string(ids[1]))
}

func TestJobIDsSkipsUnmatchedService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":[{"jobId":"3","jobName":"uat/pre-admin"}]}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ids, err := client.JobIDs(context.Background(), "zpay", "UAT", []string{"pre-admin", "no-such-svc"})
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestJobIDsKeepsNumericIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":[{"jobId":31415,"jobName":"uat/pre-admin"}]}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ids, err := client.JobIDs(context.Background(), "zpay", "UAT", []string{"pre-admin"})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, "31415", string(ids[0]))
}

func TestSubmitTicketEncodesDetailAsString(t *testing.T) {
	var gotPath, gotContentType string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		io.WriteString(w, `{"object":{"processInstanceId":"PI-9000"}}`)
	}))
	defer server.Close()

	ticket, err := BuildTicket(TicketRequest{
		Project:      "zpay",
		Environment:  "UAT",
		Services:     []string{"pre-admin"},
		Hashes:       []string{"abc123"},
		JobIDs:       []json.RawMessage{json.RawMessage(`"3"`)},
		ApproverMail: "boss@example.com",
	}, testNow(t))
	require.NoError(t, err)

	client := newTestClient(t, server.URL)
	result, err := client.SubmitTicket(context.Background(), ticket)
	require.NoError(t, err)
	assert.Equal(t, "PI-9000", result.ProcessInstanceID)
	assert.Contains(t, result.Response, "PI-9000")

	assert.Equal(t, "/api/flow/task/startnew/dcAutoReleaseProcess", gotPath)
	assert.Equal(t, "application/json; charset=UTF-8", gotContentType)
	assert.Equal(t, "zpay预发发版", gotBody["title"])
	assert.Equal(t, "dcAutoReleaseProcess", gotBody["type"])
	assert.Equal(t, "10572", gotBody["userId"])
	assert.Equal(t, "0", gotBody["endType"])

	detailStr, ok := gotBody["detail"].(string)
	require.True(t, ok, "detail must be serialised as a JSON string")
	var sections []DetailSection
	require.NoError(t, json.Unmarshal([]byte(detailStr), &sections))
	require.Len(t, sections, 1)
	assert.Equal(t, "申请详情", sections[0][0]["status"])
}

func TestSubmitTicketRejectsMissingProcessID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"object":{}}`)
	}))
	defer server.Close()

	ticket := minimalTicket(t)
	client := newTestClient(t, server.URL)
	_, err := client.SubmitTicket(context.Background(), ticket)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "processInstanceId")
}

func TestSubmitTicketServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	ticket := minimalTicket(t)
	client := newTestClient(t, server.URL)
	_, err := client.SubmitTicket(context.Background(), ticket)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestReleaseIDsCoercesStringsAndNumbers(t *testing.T) {
	var gotPath, gotProID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotProID = r.URL.Query().Get("proId")
		io.WriteString(w, `{"object":[123,"456","",null]}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ids, err := client.ReleaseIDs(context.Background(), "PI-9000")
	require.NoError(t, err)

	assert.Equal(t, "/api/flow/publish/hisitory/getReleaseId", gotPath)
	assert.Equal(t, "PI-9000", gotProID)
	assert.Equal(t, []int64{123, 456}, ids)
}

func TestReleaseIDsEmptyObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"object":[]}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ids, err := client.ReleaseIDs(context.Background(), "PI-9000")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestGetBuildDetail(t *testing.T) {
	var gotPath, gotID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotID = r.URL.Query().Get("id")
		io.WriteString(w, `{"data":{"jobName":"uat/pre-admin","publishStatus":"SUCCESS","round":2}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	detail, err := client.GetBuildDetail(context.Background(), 101)
	require.NoError(t, err)

	assert.Equal(t, "/api/flow/publish/hisitory/buildDetail", gotPath)
	assert.Equal(t, "101", gotID)
	assert.Equal(t, "uat/pre-admin", detail.JobName)
	assert.Equal(t, "SUCCESS", detail.PublishStatus)
	assert.Contains(t, detail.Raw, `"round":2`)
}

func TestGetBuildDetailServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.GetBuildDetail(context.Background(), 101)
	require.Error(t, err)
}
