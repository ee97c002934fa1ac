// Package anime1 enumerates and downloads the episodes listed on an anime1.me
// page.
package anime1

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/tanq16/utools/internal/batch"
	"github.com/tanq16/utools/internal/utils"
)

const DefaultAPIURL = "https://v.anime1.me/api"

var (
	ErrCredentials = errors.New("cloudflare bypass requires both User-Agent and cf_clearance")
	ErrBlocked     = errors.New("blocked by Cloudflare")
	ErrEnumeration = errors.New("could not enumerate episodes")
)

type Options struct {
	UserAgent string
	// Clearance is the cf_clearance cookie value.
	Clearance string
	APIURL    string
	// HTTP holds the connection settings (timeout, proxy, keep-alive) shared
	// by the page and API clients.
	HTTP utils.HTTPClientConfig
	// Headers are added to page requests.
	Headers map[string]string
}

type Client struct {
	page   utils.HTTPDoer
	opts   Options
	log    zerolog.Logger
	newAPI func() apiSession
}

// NewClient validates the Cloudflare credentials. Both or neither must be set.
func NewClient(opts Options, log zerolog.Logger) (*Client, error) {
	if (opts.UserAgent == "") != (opts.Clearance == "") {
		return nil, ErrCredentials
	}
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	log = log.With().Str("op", "anime1/client").Logger()
	cfg := opts.HTTP
	cfg.UserAgent = opts.UserAgent
	cfg.Headers = opts.Headers
	if opts.Clearance != "" {
		cfg.Cookies = map[string]string{"cf_clearance": opts.Clearance}
	} else {
		log.Warn().Msg("User-Agent and cf_clearance are missing, Cloudflare may block the request")
	}
	c := &Client{
		page: utils.NewHTTPClient(cfg),
		opts: opts,
		log:  log,
	}
	c.newAPI = func() apiSession {
		return utils.NewHTTPClient(opts.HTTP)
	}
	return c, nil
}

// Enumerate returns the series name and one item per episode, in page order.
func (c *Client) Enumerate(ctx context.Context, pageURL string) (string, []batch.Item, error) {
	c.log.Info().Str("url", pageURL).Msg("extracting episode list")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("error creating request: %v", err)
	}
	resp, err := c.page.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("error fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden {
		return "", nil, ErrBlocked
	}
	if resp.StatusCode >= 400 {
		return "", nil, fmt.Errorf("error fetching %s: status %s", pageURL, resp.Status)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("error parsing page: %v", err)
	}

	var titles, tokens []string
	doc.Find(".entry-title").Each(func(_ int, s *goquery.Selection) {
		titles = append(titles, strings.TrimSpace(s.Text()))
	})
	doc.Find(".video-js").Each(func(_ int, s *goquery.Selection) {
		if token, ok := s.Attr("data-apireq"); ok && token != "" {
			tokens = append(tokens, token)
		}
	})
	switch {
	case len(tokens) == 0:
		return "", nil, fmt.Errorf("%w: no data-apireq found", ErrEnumeration)
	case len(titles) == 0:
		return "", nil, fmt.Errorf("%w: no episode titles found", ErrEnumeration)
	case len(titles) != len(tokens):
		return "", nil, fmt.Errorf("%w: %d titles but %d videos", ErrEnumeration, len(titles), len(tokens))
	}

	series := SeriesName(titles[0])
	items := make([]batch.Item, len(titles))
	for i := range titles {
		items[i] = batch.Item{
			ID:         titles[i],
			Title:      titles[i],
			Collection: series,
			SourceURL:  pageURL,
			Token:      tokens[i],
		}
		c.log.Info().Str("title", titles[i]).Msg("found episode")
		c.log.Debug().Str("title", titles[i]).Str("apireq", tokens[i]).Msg("episode token")
	}
	return series, items, nil
}

// SeriesName is the part of an episode title before " [", trimmed.
func SeriesName(title string) string {
	if name, _, found := strings.Cut(title, " ["); found {
		return strings.TrimSpace(name)
	}
	return strings.TrimSpace(title)
}
