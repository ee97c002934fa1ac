package utils

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"
)

type HTTPClientConfig struct {
	Timeout       time.Duration
	KATimeout     time.Duration
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string
	UserAgent     string
	Headers       map[string]string
	Cookies       map[string]string // sent with every request
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClient wraps http.Client with fixed headers, static cookies and a
// session cookie jar so that cookies set by one exchange can be read back.
type HTTPClient struct {
	client *http.Client
	jar    http.CookieJar
	config HTTPClientConfig
}

func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.KATimeout == 0 {
		cfg.KATimeout = 60 * time.Second
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		IdleConnTimeout:     cfg.KATimeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
	}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err == nil {
			if cfg.ProxyUsername != "" {
				if cfg.ProxyPassword != "" {
					proxyURL.User = url.UserPassword(cfg.ProxyUsername, cfg.ProxyPassword)
				} else {
					proxyURL.User = url.User(cfg.ProxyUsername)
				}
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	jar, _ := cookiejar.New(nil) // only errors on a bad PublicSuffixList
	return &HTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			Jar:       jar,
		},
		jar:    jar,
		config: cfg,
	}
}

func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	} else {
		req.Header.Set("User-Agent", ToolUserAgent)
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	for name, value := range c.config.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return c.client.Do(req)
}

// Cookies returns the session cookies the jar holds for rawURL.
func (c *HTTPClient) Cookies(rawURL string) map[string]string {
	result := make(map[string]string)
	u, err := url.Parse(rawURL)
	if err != nil {
		return result
	}
	for _, cookie := range c.jar.Cookies(u) {
		result[cookie.Name] = cookie.Value
	}
	return result
}
