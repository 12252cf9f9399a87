// Package twitter is a small REST client for the Twitter v1.1 API covering
// search, status updates and oEmbed lookups.
package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"statusbot/internal/channel"
)

const (
	createdAtLayout = "Mon Jan 02 15:04:05 -0700 2006"
	maxBodySize     = 2 * 1024 * 1024
	searchPageSize  = 100
)

// ErrProtected is returned by OEmbed when the status belongs to a protected
// account.
var ErrProtected = errors.New("status is protected")

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Tweet is a status as returned by the API.
type Tweet struct {
	IDStr     string
	Username  string
	Text      string
	CreatedAt time.Time
}

// Embed is the oEmbed representation of a status.
type Embed struct {
	URL        string
	AuthorName string
	HTML       string
}

// Client talks to the Twitter API. It is safe for concurrent use.
type Client struct {
	client      HTTPClient
	apiURL      string
	webURL      string
	bearerToken string
	timeout     time.Duration
	executor    failsafe.Executor[*http.Response]
	log         *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc HTTPClient) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithBearerToken authenticates every request with token.
func WithBearerToken(token string) Option {
	return func(c *Client) {
		c.bearerToken = token
	}
}

// WithWebURL sets the base URL of public status links.
func WithWebURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.webURL = strings.TrimRight(u, "/")
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// New creates a Client for the API rooted at apiURL.
func New(apiURL string, opts ...Option) *Client {
	c := &Client{
		client:  &http.Client{},
		apiURL:  strings.TrimRight(apiURL, "/"),
		webURL:  "https://twitter.com",
		timeout: 30 * time.Second,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.executor = failsafe.With(newCircuitBreaker(c.log))
	return c
}

// newCircuitBreaker opens when five of the last ten calls fail with a
// transport error or a 5xx response. Requests are never retried.
//
//nolint:bodyclose // *http.Response is a type parameter here
func newCircuitBreaker(log *slog.Logger) circuitbreaker.CircuitBreaker[*http.Response] {
	return circuitbreaker.NewBuilder[*http.Response]().
		WithFailureThresholdRatio(5, 10).
		WithDelay(15 * time.Second).
		WithSuccessThreshold(1).
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp != nil && resp.StatusCode >= 500
		}).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			log.Warn("twitter circuit breaker state change",
				"from", event.OldState,
				"to", event.NewState,
			)
		}).
		Build()
}

// StatusURL returns the public link of a status.
func (c *Client) StatusURL(username, id string) string {
	return fmt.Sprintf("%s/%s/status/%s", c.webURL, username, id)
}

// SearchRecentExactText returns recent statuses of username containing the
// exact phrase text, posted on or after the calendar day of since.
func (c *Client) SearchRecentExactText(ctx context.Context, username, text string, since time.Time) ([]channel.Post, error) {
	q := url.Values{}
	q.Set("q", searchQuery(username, text, since))
	q.Set("result_type", "recent")
	q.Set("count", fmt.Sprint(searchPageSize))
	q.Set("tweet_mode", "extended")

	var body struct {
		Statuses []tweetJSON `json:"statuses"`
	}
	if err := c.do(ctx, http.MethodGet, "/1.1/search/tweets.json?"+q.Encode(), nil, &body); err != nil {
		return nil, fmt.Errorf("search tweets: %w", err)
	}

	posts := make([]channel.Post, 0, len(body.Statuses))
	for _, tw := range body.Statuses {
		t, err := tw.toTweet()
		if err != nil {
			c.log.Warn("skipping malformed search result", "id", tw.IDStr, "error", err)
			continue
		}
		posts = append(posts, channel.Post{
			ID:        t.IDStr,
			Username:  t.Username,
			Text:      t.Text,
			CreatedAt: t.CreatedAt,
		})
	}
	c.log.Debug("searched recent tweets", "username", username, "results", len(posts))
	return posts, nil
}

// UpdateStatus publishes message and returns the created status.
func (c *Client) UpdateStatus(ctx context.Context, message string) (*Tweet, error) {
	form := url.Values{}
	form.Set("status", message)

	var tw tweetJSON
	if err := c.do(ctx, http.MethodPost, "/1.1/statuses/update.json", form, &tw); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	t, err := tw.toTweet()
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	return t, nil
}

// OEmbed fetches the embeddable representation of a status. It returns
// ErrProtected for statuses of protected accounts.
func (c *Client) OEmbed(ctx context.Context, idStr string) (*Embed, error) {
	q := url.Values{}
	q.Set("id", idStr)
	q.Set("omit_script", "true")

	var body struct {
		URL        string `json:"url"`
		AuthorName string `json:"author_name"`
		HTML       string `json:"html"`
	}
	err := c.do(ctx, http.MethodGet, "/1.1/statuses/oembed.json?"+q.Encode(), nil, &body)
	if err != nil {
		var apiErr *channel.ExternalAPIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden {
			return nil, ErrProtected
		}
		return nil, fmt.Errorf("oembed %s: %w", idStr, err)
	}
	return &Embed{URL: body.URL, AuthorName: body.AuthorName, HTML: body.HTML}, nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		var body io.Reader
		if form != nil {
			body = strings.NewReader(form.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", "StatusBot/1.0")
		req.Header.Set("Accept", "application/json")
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		if c.bearerToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.bearerToken)
		}
		return c.client.Do(req)
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return &channel.ExternalAPIError{Reason: "circuit breaker open", Err: err}
		}
		return &channel.ExternalAPIError{Reason: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &channel.ExternalAPIError{Reason: "read body", StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &channel.ExternalAPIError{Reason: errorReason(resp, data), StatusCode: resp.StatusCode}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &channel.ExternalAPIError{Reason: "decode response", StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

// errorReason prefers the API's own error message over the status text.
func errorReason(resp *http.Response, data []byte) string {
	var body struct {
		Errors []struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(data, &body); err == nil && len(body.Errors) > 0 && body.Errors[0].Message != "" {
		return body.Errors[0].Message
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}

func searchQuery(username, text string, since time.Time) string {
	return fmt.Sprintf(`from:%s "%s" since:%s`, username, text, since.UTC().Format("2006-01-02"))
}

type tweetJSON struct {
	IDStr     string `json:"id_str"`
	Text      string `json:"text"`
	FullText  string `json:"full_text"`
	CreatedAt string `json:"created_at"`
	User      struct {
		ScreenName string `json:"screen_name"`
	} `json:"user"`
}

func (tw tweetJSON) toTweet() (*Tweet, error) {
	if tw.IDStr == "" {
		return nil, errors.New("missing id_str")
	}
	text := tw.FullText
	if text == "" {
		text = tw.Text
	}
	t := &Tweet{
		IDStr:    tw.IDStr,
		Username: tw.User.ScreenName,
		Text:     html.UnescapeString(text),
	}
	if tw.CreatedAt != "" {
		created, err := time.Parse(createdAtLayout, tw.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", tw.CreatedAt, err)
		}
		t.CreatedAt = created.UTC()
	}
	return t, nil
}
