package engine

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"

	"github.com/IliaW/dip-crawler/config"
	"github.com/go-resty/resty/v2"
)

// Session owns the cookie store shared by every request of a crawl. The jar is
// the only cross-request mutable state besides the rate limiter; cookiejar.Jar
// serializes access internally, so cookie updates from any in-flight request
// are visible to all subsequently issued ones.
type Session struct {
	client *resty.Client
}

func NewSession(cfg *config.EngineConfig, httpCfg *config.HttpClientConfig) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	client := resty.New().
		SetCookieJar(jar).
		SetTimeout(cfg.RequestTimeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	if httpCfg != nil {
		client.SetTransport(newTransport(httpCfg))
	}

	return &Session{client: client}, nil
}

// Bootstrap hits the cookie landing endpoint to establish the server session.
// The call is useless unless the server actually sets a cookie, so an empty
// Set-Cookie response is an error.
func (s *Session) Bootstrap(ctx context.Context, cookieLandingUrl string) error {
	resp, err := s.client.R().SetContext(ctx).Get(cookieLandingUrl)
	if err != nil {
		return fmt.Errorf("bootstrap request failed: %w", err)
	}
	if resp.StatusCode()/100 != 2 {
		return &StatusError{
			StatusCode: resp.StatusCode(),
			Status:     resp.Status(),
			URL:        cookieLandingUrl,
		}
	}
	if len(resp.Cookies()) == 0 {
		return ErrNoSessionCookie
	}
	return nil
}

func newTransport(cfg *config.HttpClientConfig) *http.Transport {
	return &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConnections,
		MaxIdleConnsPerHost: cfg.MaxIdleConnectionsPerHost,
		MaxConnsPerHost:     cfg.MaxConnectionsPerHost,
		IdleConnTimeout:     cfg.IdleConnectionTimeout,
		TLSHandshakeTimeout: cfg.TlsHandshakeTimeout,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.DialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TlsInsecureSkipVerify,
		},
	}
}
