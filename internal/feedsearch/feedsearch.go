// Package feedsearch searches an account's recent posts through its
// RSS or Atom timeline, for deployments without search API access.
package feedsearch

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"statusbot/internal/channel"
)

// UsernamePlaceholder is replaced by the account name in the feed URL template.
const UsernamePlaceholder = "{username}"

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Searcher downloads an account timeline feed and matches its items.
type Searcher struct {
	client      HTTPClient
	urlTemplate string
}

// New creates a Searcher. urlTemplate must contain UsernamePlaceholder.
func New(client HTTPClient, urlTemplate string) *Searcher {
	return &Searcher{
		client:      client,
		urlTemplate: urlTemplate,
	}
}

// FeedURL returns the timeline feed URL of username.
func (s *Searcher) FeedURL(username string) string {
	return strings.ReplaceAll(s.urlTemplate, UsernamePlaceholder, url.PathEscape(username))
}

// SearchRecentExactText returns the feed items published at or after since
// whose title or plain-text description equals text.
func (s *Searcher) SearchRecentExactText(ctx context.Context, username, text string, since time.Time) ([]channel.Post, error) {
	feed, err := s.Fetch(ctx, s.FeedURL(username))
	if err != nil {
		return nil, err
	}

	want := strings.TrimSpace(text)
	var posts []channel.Post
	for _, item := range feed.Items {
		published := itemTime(item)
		if !published.IsZero() && published.Before(since) {
			continue
		}
		if !itemHasText(item, want) {
			continue
		}
		posts = append(posts, channel.Post{
			ID:        ItemID(item),
			Username:  username,
			Text:      want,
			CreatedAt: published,
		})
	}
	return posts, nil
}

// Fetch downloads and parses a feed.
func (s *Searcher) Fetch(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "StatusBot/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &channel.ExternalAPIError{Reason: "http get", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &channel.ExternalAPIError{Reason: "unexpected feed status", StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, &channel.ExternalAPIError{Reason: "read body", StatusCode: resp.StatusCode, Err: err}
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, &channel.ExternalAPIError{Reason: "parse feed", StatusCode: resp.StatusCode, Err: err}
	}
	return feed, nil
}

// ItemID returns the status identifier of a feed item. Timeline feeds link
// to ".../status/<id>"; other items fall back to the GUID or a hash of the
// title and link.
func ItemID(item *gofeed.Item) string {
	if link, err := url.Parse(item.Link); err == nil && strings.Contains(link.Path, "/status/") {
		return path.Base(link.Path)
	}
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

func itemTime(item *gofeed.Item) time.Time {
	switch {
	case item.PublishedParsed != nil:
		return item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		return item.UpdatedParsed.UTC()
	}
	return time.Time{}
}

func itemHasText(item *gofeed.Item, want string) bool {
	if strings.TrimSpace(item.Title) == want {
		return true
	}
	for _, raw := range []string{item.Description, item.Content} {
		if raw != "" && plainText(raw) == want {
			return true
		}
	}
	return false
}

// plainText strips markup from an HTML fragment.
func plainText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return strings.TrimSpace(doc.Text())
}
