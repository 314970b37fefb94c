package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOptions = `{
  "projects": {
    "zpay": {
      "command": "/deploy_build",
      "environments": ["UAT", "PROD"],
      "services": {
        "UAT": ["gateway", "wallet"],
        "PROD": ["gateway"]
      },
      "group_ids": [-1001111111111, -1002222222222],
      "default_branch": {"UAT": "uat-ebpay", "PROD": "master"},
      "ops_usernames": ["ops_a", "ops_b"]
    },
    "acore": {
      "command": "deploy_acore",
      "environments": ["uat"],
      "services": ["core-api"],
      "group_ids": ["-1003333333333"],
      "address_only": true,
      "default_branch": "main"
    }
  }
}`

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions([]byte(sampleOptions))
	require.NoError(t, err)
	require.Len(t, opts.Projects, 2)

	// Keyboard order follows the document, not the map.
	assert.Equal(t, []string{"zpay", "acore"}, opts.ProjectNames())

	zpay := opts.Project("zpay")
	require.NotNil(t, zpay)
	assert.Equal(t, []string{"UAT", "PROD"}, zpay.Environments)
	assert.Equal(t, []string{"gateway", "wallet"}, zpay.Services.ForEnvironment("UAT"))
	assert.False(t, zpay.AddressOnly)

	acore := opts.Project("acore")
	require.NotNil(t, acore)
	assert.True(t, acore.AddressOnly)
	assert.Equal(t, []int64{-1003333333333}, []int64(acore.GroupIDs))

	assert.Nil(t, opts.Project("missing"))
	assert.Nil(t, opts.Environments("missing"))
}

func TestParseOptionsLegacyShapes(t *testing.T) {
	doc := `{
  "projects": {
    "legacy": {
      "command": "/deploy_legacy",
      "environments": ["uat", "prod"],
      "services": ["svc-a", "svc-b"],
      "group_ids": -1004444444444
    }
  }
}`
	opts, err := ParseOptions([]byte(doc))
	require.NoError(t, err)

	legacy := opts.Project("legacy")
	require.NotNil(t, legacy)
	// A flat catalog serves every environment.
	assert.Equal(t, []string{"svc-a", "svc-b"}, legacy.Services.ForEnvironment("uat"))
	assert.Equal(t, []string{"svc-a", "svc-b"}, legacy.Services.ForEnvironment("prod"))
	// A single scalar group id becomes a one-element list.
	assert.Equal(t, []int64{-1004444444444}, []int64(legacy.GroupIDs))
}

func TestParseOptionsRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"no projects", `{"projects": {}}`},
		{
			"missing command",
			`{"projects": {"p": {"environments": ["uat"], "services": ["s"], "group_ids": [-1]}}}`,
		},
		{
			"no environments",
			`{"projects": {"p": {"command": "/d", "environments": [], "services": ["s"], "group_ids": [-1]}}}`,
		},
		{
			"no services",
			`{"projects": {"p": {"command": "/d", "environments": ["uat"], "services": {}, "group_ids": [-1]}}}`,
		},
		{
			"no group ids",
			`{"projects": {"p": {"command": "/d", "environments": ["uat"], "services": ["s"]}}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOptions([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestProjectNamesSortedFallback(t *testing.T) {
	// Options built in code carry no document order.
	opts := &Options{Projects: map[string]*Project{
		"zulu":  {},
		"alpha": {},
	}}
	assert.Equal(t, []string{"alpha", "zulu"}, opts.ProjectNames())
}

func TestServiceCatalogMatchEnv(t *testing.T) {
	catalog := ServiceCatalog{ByEnv: map[string][]string{
		"UAT":  {"gateway", "wallet"},
		"PROD": {"gateway"},
	}}

	key, services, ok := catalog.MatchEnv("UAT")
	require.True(t, ok)
	assert.Equal(t, "UAT", key)
	assert.Equal(t, []string{"gateway", "wallet"}, services)

	key, services, ok = catalog.MatchEnv("uat")
	require.True(t, ok)
	assert.Equal(t, "UAT", key)
	assert.Equal(t, []string{"gateway", "wallet"}, services)

	_, _, ok = catalog.MatchEnv("staging")
	assert.False(t, ok)

	_, _, ok = ServiceCatalog{Flat: []string{"svc"}}.MatchEnv("uat")
	assert.False(t, ok)
}

func TestServiceCatalogForEnvironmentIsExact(t *testing.T) {
	catalog := ServiceCatalog{ByEnv: map[string][]string{"UAT": {"gateway"}}}
	assert.Equal(t, []string{"gateway"}, catalog.ForEnvironment("UAT"))
	// The form flow keys environments exactly as the options document spells
	// them, so no case folding here.
	assert.Nil(t, catalog.ForEnvironment("uat"))
}

func TestServiceCatalogAll(t *testing.T) {
	catalog := ServiceCatalog{ByEnv: map[string][]string{
		"UAT":  {"wallet", "gateway"},
		"PROD": {"gateway", "ledger"},
	}}
	assert.Equal(t, []string{"gateway", "ledger", "wallet"}, catalog.All())

	flat := ServiceCatalog{Flat: []string{"b", "a"}}
	assert.Equal(t, []string{"b", "a"}, flat.All())
}

func TestBranchSettingResolve(t *testing.T) {
	var scalar BranchSetting
	require.NoError(t, scalar.UnmarshalJSON([]byte(`"main"`)))
	assert.Equal(t, "main", scalar.Resolve("UAT"))
	assert.Equal(t, "main", scalar.Resolve("anything"))

	var byEnv BranchSetting
	require.NoError(t, byEnv.UnmarshalJSON([]byte(`{"UAT": "uat-ebpay", "PROD": "master"}`)))
	assert.Equal(t, "uat-ebpay", byEnv.Resolve("UAT"))
	assert.Equal(t, "uat-ebpay", byEnv.Resolve("uat"))
	assert.Equal(t, "", byEnv.Resolve("staging"))

	var unset BranchSetting
	assert.Equal(t, "", unset.Resolve("UAT"))
}

func TestGroupIDsByProject(t *testing.T) {
	opts, err := ParseOptions([]byte(sampleOptions))
	require.NoError(t, err)

	ids, err := opts.GroupIDsByProject("zpay")
	require.NoError(t, err)
	assert.Equal(t, []int64{-1001111111111, -1002222222222}, ids)

	_, err = opts.GroupIDsByProject("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "项目 'missing' 未配置 group_ids")
}

func TestAllGroupIDs(t *testing.T) {
	opts := &Options{Projects: map[string]*Project{
		"a": {GroupIDs: GroupIDList{-3, -1}},
		"b": {GroupIDs: GroupIDList{-1, -2}},
	}}
	assert.Equal(t, []int64{-3, -2, -1}, opts.AllGroupIDs())
}

func TestEnsureGroupIDs(t *testing.T) {
	err := EmptyOptions().EnsureGroupIDs()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "缺少项目配置")

	opts := &Options{Projects: map[string]*Project{
		"ok":   {GroupIDs: GroupIDList{-1}},
		"bare": {},
	}}
	err = opts.EnsureGroupIDs()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "以下项目未配置 group_ids: bare")

	assert.NoError(t, (&Options{Projects: map[string]*Project{
		"ok": {GroupIDs: GroupIDList{-1}},
	}}).EnsureGroupIDs())
}
