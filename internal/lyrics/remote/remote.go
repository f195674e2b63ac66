package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kiliankoe/lyricsflip/internal/lyrics"
)

// Client fetches rounds from a lyric service exposing GET /v1/rounds?genre=<genre>.
type Client struct {
	APIKey  string
	BaseURL string
	http    *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{APIKey: apiKey, BaseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: 20 * time.Second}}
}

func (c *Client) Next(ctx context.Context, genre string) (lyrics.Round, error) {
	if c.BaseURL == "" {
		return lyrics.Round{}, errors.New("missing LYRICS_API_URL")
	}
	u := c.BaseURL + "/v1/rounds?genre=" + url.QueryEscape(genre)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return lyrics.Round{}, err
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return lyrics.Round{}, fmt.Errorf("%w: %v", lyrics.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return lyrics.Round{}, fmt.Errorf("%w: %q", lyrics.ErrUnknownGenre, genre)
	case resp.StatusCode/100 != 2:
		return lyrics.Round{}, fmt.Errorf("%w: lyric service status %d", lyrics.ErrUnavailable, resp.StatusCode)
	}
	var out lyrics.Round
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return lyrics.Round{}, fmt.Errorf("decode round: %w", err)
	}
	out.Text = strings.TrimSpace(out.Text)
	return out, nil
}
