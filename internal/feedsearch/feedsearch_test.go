package feedsearch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mmcdole/gofeed"

	"statusbot/internal/channel"
)

type mockTransport struct {
	body       string
	statusCode int
	err        error
	urls       []string
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	m.urls = append(m.urls, req.URL.String())
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func loadFixture(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test-only fixture loading
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return string(data)
}

func TestSearchRecentExactText(t *testing.T) {
	xml := loadFixture(t, "testdata/timeline.xml")
	since := time.Date(2024, time.March, 3, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		text    string
		wantIDs []string
	}{
		{name: "title and description matches", text: "Hello world", wantIDs: []string{"999", "1001"}},
		{name: "entities decoded", text: "Fish & chips", wantIDs: []string{"1000"}},
		{name: "surrounding space ignored", text: "  Fish & chips ", wantIDs: []string{"1000"}},
		{name: "no match", text: "Goodbye", wantIDs: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &mockTransport{body: xml, statusCode: http.StatusOK}
			s := New(tr, "https://nitter.example/{username}/rss")

			posts, err := s.SearchRecentExactText(context.Background(), "acme", tt.text, since)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var gotIDs []string
			for _, p := range posts {
				gotIDs = append(gotIDs, p.ID)
				if p.Username != "acme" {
					t.Errorf("expected username acme, got %q", p.Username)
				}
				if p.CreatedAt.Before(since) {
					t.Errorf("post %s created before window: %v", p.ID, p.CreatedAt)
				}
			}
			if diff := cmp.Diff(tt.wantIDs, gotIDs); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{"https://nitter.example/acme/rss"}, tr.urls); diff != "" {
				t.Errorf("requested urls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name       string
		transport  *mockTransport
		wantStatus int
	}{
		{
			name:       "http error status",
			transport:  &mockTransport{body: "not found", statusCode: 404},
			wantStatus: 404,
		},
		{
			name:      "network error",
			transport: &mockTransport{err: io.ErrUnexpectedEOF},
		},
		{
			name:       "invalid xml",
			transport:  &mockTransport{body: "not xml at all", statusCode: 200},
			wantStatus: 200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.transport, "https://nitter.example/{username}/rss")
			_, err := s.SearchRecentExactText(context.Background(), "acme", "hi", time.Time{})

			var apiErr *channel.ExternalAPIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *channel.ExternalAPIError, got %T: %v", err, err)
			}
			if diff := cmp.Diff(tt.wantStatus, apiErr.StatusCode); diff != "" {
				t.Errorf("status mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestItemID(t *testing.T) {
	tests := []struct {
		name    string
		item    *gofeed.Item
		want    string
		hasHash bool
	}{
		{
			name: "status link",
			item: &gofeed.Item{Link: "https://nitter.example/acme/status/123#m", GUID: "ignored"},
			want: "123",
		},
		{
			name: "guid fallback",
			item: &gofeed.Item{Link: "https://blog.example/post", GUID: "abc-123"},
			want: "abc-123",
		},
		{
			name:    "hash fallback",
			item:    &gofeed.Item{Title: "Post", Link: "https://blog.example/post"},
			hasHash: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ItemID(tt.item)
			if tt.hasHash {
				if len(got) < len("sha256:") || got[:7] != "sha256:" {
					t.Errorf("expected sha256 prefix, got %q", got)
				}
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ItemID() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
