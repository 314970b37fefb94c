package sso

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNow(t *testing.T) time.Time {
	t.Helper()
	now, err := time.Parse("2006-01-02 15:04:05", "2026-03-01 14:30:00")
	require.NoError(t, err)
	return now
}

func minimalTicket(t *testing.T) *Ticket {
	t.Helper()
	ticket, err := BuildTicket(TicketRequest{
		Project:      "zpay",
		Environment:  "UAT",
		Services:     []string{"pre-admin"},
		Hashes:       []string{"abc123"},
		JobIDs:       []json.RawMessage{json.RawMessage(`"3"`)},
		ApproverMail: "boss@example.com",
	}, testNow(t))
	require.NoError(t, err)
	return ticket
}

func TestBuildTicketComposesDetail(t *testing.T) {
	ticket, err := BuildTicket(TicketRequest{
		Project:      "zpay",
		Environment:  "UAT",
		Services:     []string{"pre-admin", "pre-api"},
		Hashes:       []string{"abc123", "def456"},
		JobIDs:       []json.RawMessage{json.RawMessage(`"3"`), json.RawMessage("7")},
		ApproverMail: "boss@example.com",
	}, testNow(t))
	require.NoError(t, err)

	assert.Equal(t, "zpay预发发版", ticket.Title)
	assert.Equal(t, "dcAutoReleaseProcess", ticket.Type)
	assert.Equal(t, "10572", ticket.UserID)
	assert.Equal(t, "", ticket.DraftID)
	assert.Equal(t, "0", ticket.EndType)
	assert.Equal(t, "0", ticket.ProcessStatus)
	assert.Equal(t, "0", ticket.PublishVersion)

	require.Len(t, ticket.Detail, 1)
	section := ticket.Detail[0]
	require.Len(t, section, 23)

	assert.Equal(t, map[string]any{"status": "申请详情"}, map[string]any(section[0]))
	assert.Equal(t, "projectName", section[1]["id"])
	assert.Equal(t, "zpay", section[1]["value"])
	assert.Equal(t, "releaseTime", section[5]["id"])
	assert.Equal(t, "2026-03-01 14:30:00", section[5]["value"])
	assert.Equal(t, "sqlUpdate", section[11]["id"])
	assert.Equal(t, false, section[11]["value"])

	app := section[21]
	require.Equal(t, "application", app["id"])
	assert.Equal(t, true, app["job_status"])
	children, ok := app["children"].([][]OrderItem)
	require.True(t, ok)
	require.Len(t, children, 2)
	require.Len(t, children[0], 1)
	assert.Equal(t, "pre-admin", children[0][0].Name)
	assert.Equal(t, "abc123", children[0][0].Parameters.CheckCommitID)
	assert.Equal(t, "gray", children[0][0].Parameters.ActionType)
	assert.Equal(t, "不支持", children[0][0].Parameters.CanRollback)
	assert.Equal(t, "UAT", children[0][0].Env)
	assert.Equal(t, `"3"`, string(children[0][0].JobID))
	assert.Equal(t, "7", string(children[1][0].JobID))

	accounts, ok := app["account_data"].([]OrderItem)
	require.True(t, ok)
	require.Len(t, accounts, 2)
	assert.Equal(t, "pre-api", accounts[1].Name)

	approver := section[22]
	assert.Equal(t, "approver", approver["id"])
	assert.Equal(t, "boss@example.com", approver["value"])
}

func TestBuildTicketMarshalsJobIDTypes(t *testing.T) {
	ticket, err := BuildTicket(TicketRequest{
		Project:      "zpay",
		Environment:  "UAT",
		Services:     []string{"pre-admin", "pre-api"},
		Hashes:       []string{"abc123", "def456"},
		JobIDs:       []json.RawMessage{json.RawMessage(`"str-id"`), json.RawMessage("42")},
		ApproverMail: "boss@example.com",
	}, testNow(t))
	require.NoError(t, err)

	data, err := json.Marshal(ticket)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"job_id":"str-id"`)
	assert.Contains(t, string(data), `"job_id":42`)
}

func TestBuildTicketCountMismatch(t *testing.T) {
	_, err := BuildTicket(TicketRequest{
		Project:     "zpay",
		Environment: "UAT",
		Services:    []string{"a", "b"},
		Hashes:      []string{"x"},
		JobIDs:      []json.RawMessage{json.RawMessage("1"), json.RawMessage("2")},
	}, testNow(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash count")

	_, err = BuildTicket(TicketRequest{
		Project:     "zpay",
		Environment: "UAT",
		Services:    []string{"a", "b"},
		Hashes:      []string{"x", "y"},
		JobIDs:      []json.RawMessage{json.RawMessage("1")},
	}, testNow(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job id count")
}
