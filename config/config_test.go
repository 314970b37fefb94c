package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeStore map[string]string

func (f fakeStore) GetConfig(_ context.Context, key, fallback string) (string, error) {
	if v, ok := f[key]; ok && v != "" {
		return v, nil
	}
	return fallback, nil
}

func TestAppDefaults(t *testing.T) {
	app := NewApp(fakeStore{})
	ctx := context.Background()

	api := app.API(ctx)
	assert.Equal(t, DefaultAPIEndpoint, api.Endpoint)
	assert.Equal(t, DefaultAPITimeout, api.Timeout)
	assert.False(t, api.Enabled())

	pool := app.Pool(ctx)
	assert.Equal(t, DefaultPoolSize, pool.Size)
	assert.Equal(t, DefaultReadTimeout, pool.ReadTimeout)
	assert.Equal(t, DefaultWriteTimeout, pool.WriteTimeout)
	assert.Equal(t, DefaultConnectTimeout, pool.ConnectTimeout)

	assert.Equal(t, int64(0), app.ApproverUserID(ctx))
	assert.False(t, app.SSO(ctx).Valid())
	assert.Error(t, app.RequireBotToken(ctx))
}

func TestAppTypedGetters(t *testing.T) {
	app := NewApp(fakeStore{
		KeyBotToken:         "123:abc",
		KeyApproverUsername: "@boss",
		KeyApproverUserID:   "424242",
		KeyAPIBaseURL:       "https://api.internal",
		KeyAPITimeout:       "12",
		KeyHTTPReadTimeout:  "2.5",
		KeySSOEnabled:       "TRUE",
		KeySSOURL:           "https://sso.internal",
		KeySSOAuthToken:     "tok",
		KeySSOAuthorization: "authz",
	})
	ctx := context.Background()

	assert.NoError(t, app.RequireBotToken(ctx))
	assert.Equal(t, "@boss", app.ApproverUsername(ctx))
	assert.Equal(t, int64(424242), app.ApproverUserID(ctx))

	api := app.API(ctx)
	assert.True(t, api.Enabled())
	assert.Equal(t, 12*time.Second, api.Timeout)

	assert.Equal(t, 2500*time.Millisecond, app.Pool(ctx).ReadTimeout)

	sso := app.SSO(ctx)
	assert.True(t, sso.Valid())
	assert.Equal(t, "https://sso.internal", sso.URL)
}

func TestSSOValidRequiresAllFields(t *testing.T) {
	tests := []struct {
		name     string
		settings SSOSettings
		want     bool
	}{
		{"complete", SSOSettings{Enabled: true, URL: "u", AuthToken: "t", Authorization: "a"}, true},
		{"disabled", SSOSettings{Enabled: false, URL: "u", AuthToken: "t", Authorization: "a"}, false},
		{"missing url", SSOSettings{Enabled: true, AuthToken: "t", Authorization: "a"}, false},
		{"missing auth token", SSOSettings{Enabled: true, URL: "u", Authorization: "a"}, false},
		{"missing authorization", SSOSettings{Enabled: true, URL: "u", AuthToken: "t"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.settings.Valid())
		})
	}
}

func TestJenkinsForMergesProjectOverGlobal(t *testing.T) {
	app := NewApp(fakeStore{
		KeyJenkinsEnabled:  "true",
		KeyJenkinsURL:      "https://jenkins.global",
		KeyJenkinsAPIToken: "global-token",
	})
	ctx := context.Background()

	global := app.JenkinsFor(ctx, nil)
	assert.True(t, global.Enabled)
	assert.Equal(t, "https://jenkins.global", global.URL)
	assert.Equal(t, DefaultJenkinsConcurrent, global.MaxConcurrent)

	project := &Project{Jenkins: &JenkinsSettings{
		Enabled:       true,
		URL:           "https://jenkins.project",
		MaxConcurrent: 3,
	}}
	merged := app.JenkinsFor(ctx, project)
	assert.Equal(t, "https://jenkins.project", merged.URL)
	assert.Equal(t, "global-token", merged.APIToken)
	assert.Equal(t, 3, merged.MaxConcurrent)

	// A project block that disables Jenkins wins over the global enable.
	disabled := app.JenkinsFor(ctx, &Project{Jenkins: &JenkinsSettings{Enabled: false}})
	assert.False(t, disabled.Enabled)
}

func TestJenkinsSettingsValid(t *testing.T) {
	assert.False(t, (&JenkinsSettings{}).Valid())
	assert.False(t, (&JenkinsSettings{Enabled: true, URL: "u"}).Valid())
	assert.True(t, (&JenkinsSettings{Enabled: true, URL: "u", APIToken: "t"}).Valid())
	var nilSettings *JenkinsSettings
	assert.False(t, nilSettings.Valid())
}

func TestGlobalProxy(t *testing.T) {
	ctx := context.Background()

	assert.Nil(t, NewApp(fakeStore{}).GlobalProxy(ctx))

	app := NewApp(fakeStore{
		KeyProxyEnabled: "true",
		KeyProxyHost:    "127.0.0.1",
		KeyProxyPort:    "1080",
	})
	p := app.GlobalProxy(ctx)
	if assert.NotNil(t, p) {
		assert.Equal(t, "socks5", p.Type)
		assert.Equal(t, 1080, p.Port)
	}
}
