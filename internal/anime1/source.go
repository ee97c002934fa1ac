package anime1

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// apiSession is a cookie-keeping HTTP client; a fresh one is used per
// resolve so every episode gets its own e/h/p cookies.
type apiSession interface {
	Do(req *http.Request) (*http.Response, error)
	Cookies(rawURL string) map[string]string
}

// Source is the resolved stream of one episode.
type Source struct {
	URL     string
	Cookies map[string]string
}

// CookieHeader renders the e, h and p cookies yt-dlp must send with every
// fragment request.
func (s Source) CookieHeader() (string, error) {
	var parts []string
	for _, name := range []string{"e", "h", "p"} {
		v, ok := s.Cookies[name]
		if !ok {
			return "", fmt.Errorf("missing required cookie %q (have %v)", name, s.Cookies)
		}
		parts = append(parts, name+"="+v)
	}
	return strings.Join(parts, ";"), nil
}

type apiResponse struct {
	S []struct {
		Src  string `json:"src"`
		Type string `json:"type"`
	} `json:"s"`
}

// Resolve exchanges a data-apireq token for the stream URL and its cookies.
func (c *Client) Resolve(ctx context.Context, token string) (Source, error) {
	session := c.newAPI()
	// data-apireq is already percent-encoded
	body := strings.NewReader("d=" + token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.APIURL, body)
	if err != nil {
		return Source{}, fmt.Errorf("error creating API request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := session.Do(req)
	if err != nil {
		return Source{}, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Source{}, fmt.Errorf("error reading API response: %v", err)
	}
	if resp.StatusCode >= 400 {
		return Source{}, fmt.Errorf("API request failed, status %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	c.log.Debug().Str("response", string(raw)).Msg("raw API response")

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Source{}, fmt.Errorf("error decoding API response: %v", err)
	}
	if len(parsed.S) == 0 || parsed.S[0].Src == "" {
		return Source{}, fmt.Errorf("no source in API response: %s", strings.TrimSpace(string(raw)))
	}
	src := parsed.S[0].Src
	if strings.HasPrefix(src, "//") {
		src = "https:" + src
	}
	cookies := session.Cookies(c.opts.APIURL)
	c.log.Debug().Str("src", src).Interface("cookies", cookies).Msg("source resolved")
	return Source{URL: src, Cookies: cookies}, nil
}
