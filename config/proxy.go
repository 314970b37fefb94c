package config

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	xproxy "golang.org/x/net/proxy"
)

// ProxySettings configures an outbound proxy, either per project in the
// options document or globally via the PROXY_* app-config keys.
type ProxySettings struct {
	Enabled  bool   `json:"enabled"`
	Type     string `json:"type"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// ResolveProxy picks the proxy for a project. A project that carries its own
// proxy block controls the decision, even when the block is disabled; only
// projects without one inherit the global proxy.
func ResolveProxy(project *Project, global *ProxySettings) *ProxySettings {
	if project != nil && project.Proxy != nil {
		if project.Proxy.Enabled {
			return project.Proxy
		}
		return nil
	}
	if global != nil && global.Enabled {
		return global
	}
	return nil
}

// NormalizedType maps the configured proxy type onto a supported scheme.
// socks5 becomes socks5h so DNS resolves through the proxy, and unknown
// types fall back to socks5h.
func (p *ProxySettings) NormalizedType() string {
	switch t := strings.ToLower(p.Type); t {
	case "socks5", "socks5h", "":
		return "socks5h"
	case "http", "https":
		return t
	default:
		return "socks5h"
	}
}

// URL renders the proxy address as scheme://[user:pass@]host:port, or ""
// when host or port is missing.
func (p *ProxySettings) URL() string {
	if p == nil || !p.Enabled || p.Host == "" || p.Port == 0 {
		return ""
	}
	u := url.URL{
		Scheme: p.NormalizedType(),
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
	}
	if p.Username != "" && p.Password != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u.String()
}

// ClientSettings shapes the HTTP client built by NewHTTPClient.
type ClientSettings struct {
	// Proxy is optional; nil builds a direct client.
	Proxy *ProxySettings
	// Timeout bounds the whole request, 0 means no client timeout.
	Timeout time.Duration
	// PoolSize caps idle connections per host, 0 uses DefaultPoolSize.
	PoolSize int
	// ConnectTimeout bounds dialing, 0 uses DefaultConnectTimeout.
	ConnectTimeout time.Duration
}

// NewHTTPClient builds an HTTP client honouring the proxy settings. SOCKS5
// proxies dial through a proxy-aware dialer (hostnames resolve remotely),
// HTTP(S) proxies use the standard transport proxy.
func NewHTTPClient(settings ClientSettings) (*http.Client, error) {
	poolSize := settings.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	connectTimeout := settings.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}

	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        poolSize,
		MaxIdleConnsPerHost: poolSize,
		IdleConnTimeout:     90 * time.Second,
	}

	if addr := settings.Proxy.URL(); addr != "" {
		proxyURL, err := url.Parse(addr)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		switch proxyURL.Scheme {
		case "http", "https":
			transport.Proxy = http.ProxyURL(proxyURL)
		default:
			var auth *xproxy.Auth
			if user := proxyURL.User; user != nil {
				password, _ := user.Password()
				auth = &xproxy.Auth{User: user.Username(), Password: password}
			}
			socks, err := xproxy.SOCKS5("tcp", proxyURL.Host, auth, dialer)
			if err != nil {
				return nil, fmt.Errorf("build socks5 dialer: %w", err)
			}
			contextDialer, ok := socks.(xproxy.ContextDialer)
			if !ok {
				return nil, fmt.Errorf("socks5 dialer does not support context dialing")
			}
			transport.DialContext = contextDialer.DialContext
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   settings.Timeout,
	}, nil
}
