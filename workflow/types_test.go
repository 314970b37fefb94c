package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		name   string
		from   Status
		to     Status
		expect bool
	}{
		{"pending to approved", StatusPending, StatusApproved, true},
		{"pending to rejected", StatusPending, StatusRejected, true},
		{"pending to pending", StatusPending, StatusPending, false},
		{"approved to rejected", StatusApproved, StatusRejected, false},
		{"approved to approved", StatusApproved, StatusApproved, false},
		{"rejected to approved", StatusRejected, StatusApproved, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatusIsValid(t *testing.T) {
	assert.True(t, StatusPending.IsValid())
	assert.True(t, StatusApproved.IsValid())
	assert.True(t, StatusRejected.IsValid())
	assert.False(t, Status("cancelled").IsValid())
	assert.False(t, Status("").IsValid())
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "待审批", StatusPending.Label())
	assert.Equal(t, "已通过", StatusApproved.Label())
	assert.Equal(t, "已拒绝", StatusRejected.Label())
	assert.Equal(t, "未知", Status("bogus").Label())
}

func TestTemplateTypeIsValid(t *testing.T) {
	assert.True(t, TemplateDefault.IsValid())
	assert.True(t, TemplateAddressOnly.IsValid())
	assert.False(t, TemplateType("custom").IsValid())
}

func TestGroupMessagesRoundTrip(t *testing.T) {
	original := GroupMessages{
		-1001234567890: 42,
		-1009876543210: 7,
	}

	value, err := original.Value()
	require.NoError(t, err)
	require.NotNil(t, value)

	var decoded GroupMessages
	require.NoError(t, decoded.Scan(value))
	assert.Equal(t, original, decoded)
}

func TestGroupMessagesScanNull(t *testing.T) {
	var decoded GroupMessages
	require.NoError(t, decoded.Scan(nil))
	assert.NotNil(t, decoded)
	assert.Empty(t, decoded)
}

func TestGroupMessagesValueEmpty(t *testing.T) {
	value, err := GroupMessages{}.Value()
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestGroupMessagesScanBadKey(t *testing.T) {
	var decoded GroupMessages
	err := decoded.Scan(`{"not-a-number": 1}`)
	require.Error(t, err)
}

func TestBuildParametersRoundTrip(t *testing.T) {
	original := BuildParameters{
		"action_type":    "gray",
		"gitBranch":      "uat-ebpay",
		"check_commitID": "a1b2c3d",
	}

	value, err := original.Value()
	require.NoError(t, err)

	var decoded BuildParameters
	require.NoError(t, decoded.Scan(value))
	assert.Equal(t, original, decoded)
}

func TestBuildStatusTerminal(t *testing.T) {
	terminal := []BuildStatus{BuildStatusSuccess, BuildStatusFailure, BuildStatusAborted, BuildStatusUnstable}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "expected %s to be terminal", s)
	}
	nonTerminal := []BuildStatus{BuildStatusBuilding, BuildStatusTimeout, BuildStatusError}
	for _, s := range nonTerminal {
		assert.False(t, s.Terminal(), "expected %s to be non-terminal", s)
	}
}
