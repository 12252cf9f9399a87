package eligibility

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"statusbot/internal/channel"
	"statusbot/internal/model"
	"statusbot/internal/reltime"
)

var testNow = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

type searchCall struct {
	Username string
	Text     string
	Since    time.Time
}

type mockSearcher struct {
	mu    sync.Mutex
	posts []channel.Post
	err   error
	calls []searchCall
}

func (m *mockSearcher) SearchRecentExactText(_ context.Context, username, text string, since time.Time) ([]channel.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, searchCall{Username: username, Text: text, Since: since})
	if m.err != nil {
		return nil, m.err
	}
	return m.posts, nil
}

func (m *mockSearcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type recordedCheck struct {
	Check   string
	Outcome string
}

type mockRecorder struct {
	mu      sync.Mutex
	records []recordedCheck
}

func (m *mockRecorder) RecordCheck(check, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, recordedCheck{Check: check, Outcome: outcome})
}

func fixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

func newTestEvaluator(s channel.Searcher, opts ...Option) *Evaluator {
	opts = append([]Option{WithClock(fixedClock(testNow))}, opts...)
	return New(s, reltime.MustParse("+7 days"), opts...)
}

func newStatus(message, interval string) *model.Status {
	campaign := &model.Campaign{ID: 1, Name: "Spring", Interval: interval}
	location := &model.Location{ID: 2, Username: "acme"}
	activity := &model.Activity{
		ID:        3,
		StartDate: testNow.Add(-time.Minute),
		State:     model.StateScheduled,
		Campaign:  campaign,
		Location:  location,
	}
	op := &model.Operation{ID: 4, ActivityID: activity.ID, Activity: activity}
	return &model.Status{ID: 5, OperationID: op.ID, Message: message, Operation: op}
}

func TestGateIsDueNow(t *testing.T) {
	gate := NewGate(fixedClock(testNow))

	tests := []struct {
		name   string
		target time.Time
		want   bool
	}{
		{name: "past", target: testNow.Add(-time.Hour), want: true},
		{name: "exactly now", target: testNow, want: true},
		{name: "future", target: testNow.Add(time.Hour), want: false},
		{name: "one nanosecond ahead", target: testNow.Add(time.Nanosecond), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, gate.IsDueNow(tt.target)); diff != "" {
				t.Errorf("IsDueNow() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCheckExecutable(t *testing.T) {
	e := newTestEvaluator(&mockSearcher{})

	tests := []struct {
		name    string
		message string
		want    bool
	}{
		{name: "plain text", message: "Hello world", want: true},
		{name: "http link", message: "Check http://x.co", want: false},
		{name: "https link mid sentence", message: "Read https://example.com/post?id=1 today", want: false},
		{name: "dotted words are not links", message: "v1.2 is out, e.g. today", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.CheckExecutable(&model.Status{Message: tt.message})
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("CheckExecutable() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIsExecutableInChannel(t *testing.T) {
	yesterday := testNow.Add(-24 * time.Hour)

	tests := []struct {
		name        string
		message     string
		scheduledAt time.Time
		posts       []channel.Post
		wantOK      bool
		wantSearch  bool
		wantInMsg   string
	}{
		{
			name:        "url short-circuits without search",
			message:     "Check http://x.co",
			scheduledAt: testNow,
			posts:       []channel.Post{{ID: "1", Username: "acme", Text: "Check http://x.co", CreatedAt: yesterday}},
			wantOK:      true,
		},
		{
			name:        "not yet due skips search",
			message:     "Hello world",
			scheduledAt: testNow.Add(time.Hour),
			posts:       []channel.Post{{ID: "1", Username: "acme", Text: "Hello world", CreatedAt: yesterday}},
			wantOK:      true,
		},
		{
			name:        "due and no matches",
			message:     "Hello world",
			scheduledAt: testNow,
			wantOK:      true,
			wantSearch:  true,
		},
		{
			name:        "exact match fails with identifier",
			message:     "Hello world",
			scheduledAt: testNow.Add(-time.Minute),
			posts:       []channel.Post{{ID: "999", Username: "acme", Text: "Hello world", CreatedAt: yesterday}},
			wantSearch:  true,
			wantInMsg:   "https://twitter.com/acme/status/999",
		},
		{
			name:        "near match passes",
			message:     "Hello world",
			scheduledAt: testNow,
			posts:       []channel.Post{{ID: "1", Username: "acme", Text: "Hello world!", CreatedAt: yesterday}},
			wantOK:      true,
			wantSearch:  true,
		},
		{
			name:        "other account ignored",
			message:     "Hello world",
			scheduledAt: testNow,
			posts:       []channel.Post{{ID: "1", Username: "someone", Text: "Hello world", CreatedAt: yesterday}},
			wantOK:      true,
			wantSearch:  true,
		},
		{
			name:        "username compared case-insensitively",
			message:     "Hello world",
			scheduledAt: testNow,
			posts:       []channel.Post{{ID: "77", Username: "ACME", Text: "Hello world", CreatedAt: yesterday}},
			wantSearch:  true,
			wantInMsg:   "77",
		},
		{
			name:        "match older than window ignored",
			message:     "Hello world",
			scheduledAt: testNow,
			posts:       []channel.Post{{ID: "1", Username: "acme", Text: "Hello world", CreatedAt: testNow.AddDate(0, 0, -8)}},
			wantOK:      true,
			wantSearch:  true,
		},
		{
			name:        "second candidate matches",
			message:     "Hello world",
			scheduledAt: testNow,
			posts: []channel.Post{
				{ID: "1", Username: "acme", Text: "Hello world, again", CreatedAt: yesterday},
				{ID: "2", Username: "acme", Text: "Hello world", CreatedAt: yesterday},
			},
			wantSearch: true,
			wantInMsg:  "/status/2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := &mockSearcher{posts: tt.posts}
			e := newTestEvaluator(searcher)

			v, err := e.IsExecutableInChannel(context.Background(), newStatus(tt.message, ""), tt.scheduledAt)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.wantOK, v.OK); diff != "" {
				t.Errorf("verdict mismatch (-want +got):\n%s", diff)
			}
			if tt.wantInMsg != "" && !strings.Contains(v.Message, tt.wantInMsg) {
				t.Errorf("expected message to contain %q, got %q", tt.wantInMsg, v.Message)
			}
			if diff := cmp.Diff(tt.wantSearch, searcher.callCount() > 0); diff != "" {
				t.Errorf("search invocation mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIsExecutableInChannelSearchWindow(t *testing.T) {
	searcher := &mockSearcher{}
	e := newTestEvaluator(searcher)

	if _, err := e.IsExecutableInChannel(context.Background(), newStatus("Hello world", ""), testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []searchCall{{
		Username: "acme",
		Text:     "Hello world",
		Since:    time.Date(2024, time.March, 3, 12, 0, 0, 0, time.UTC),
	}}
	if diff := cmp.Diff(want, searcher.calls); diff != "" {
		t.Errorf("search call mismatch (-want +got):\n%s", diff)
	}
}

func TestIsExecutableInChannelExternalError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "api error kept as is",
			err:        &channel.ExternalAPIError{Reason: "Unauthorized", StatusCode: 401},
			wantStatus: 401,
		},
		{
			name: "plain error classified as external",
			err:  errors.New("dial tcp: connection refused"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEvaluator(&mockSearcher{err: tt.err})

			v, err := e.IsExecutableInChannel(context.Background(), newStatus("Hello world", ""), testNow)
			if err == nil {
				t.Fatalf("expected error, got verdict %+v", v)
			}
			var apiErr *channel.ExternalAPIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *channel.ExternalAPIError, got %T: %v", err, err)
			}
			if diff := cmp.Diff(tt.wantStatus, apiErr.StatusCode); diff != "" {
				t.Errorf("status code mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIsExecutableInChannelIncompleteContent(t *testing.T) {
	e := newTestEvaluator(&mockSearcher{})

	_, err := e.IsExecutableInChannel(context.Background(), &model.Status{Message: "Hello world"}, testNow)
	if !errors.Is(err, ErrIncompleteContent) {
		t.Errorf("expected ErrIncompleteContent, got %v", err)
	}
}

func TestCheckCampaign(t *testing.T) {
	tests := []struct {
		name      string
		interval  string
		maxDup    string
		wantOK    bool
		wantInMsg string
	}{
		{name: "no interval", interval: "", maxDup: "+7 days", wantOK: true},
		{name: "shorter interval fails", interval: "+3 days", maxDup: "+7 days", wantInMsg: "more than 7 days"},
		{name: "longer interval passes", interval: "+10 days", maxDup: "+7 days", wantOK: true},
		{name: "equal interval passes", interval: "+7 days", maxDup: "+7 days", wantOK: true},
		{name: "equivalent units pass", interval: "+1 week", maxDup: "+7 days", wantOK: true},
		{name: "hours shorter than window", interval: "+24 hours", maxDup: "+2 days", wantInMsg: "2 days"},
		{name: "malformed interval fails", interval: "every tuesday", maxDup: "+7 days", wantInMsg: "cannot be interpreted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(&mockSearcher{}, reltime.MustParse(tt.maxDup), WithClock(fixedClock(testNow)))

			v := e.CheckCampaign(&model.Campaign{Interval: tt.interval})
			if diff := cmp.Diff(tt.wantOK, v.OK); diff != "" {
				t.Errorf("verdict mismatch (-want +got):\n%s", diff)
			}
			if !tt.wantOK && !strings.Contains(v.Message, tt.wantInMsg) {
				t.Errorf("expected message to contain %q, got %q", tt.wantInMsg, v.Message)
			}
		})
	}
}

func TestIsExecutableInCampaignWithoutCampaign(t *testing.T) {
	e := newTestEvaluator(&mockSearcher{})
	s := newStatus("Hello world", "")
	s.Operation.Activity.Campaign = nil

	if diff := cmp.Diff(Pass(), e.IsExecutableInCampaign(s)); diff != "" {
		t.Errorf("verdict mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluateScenarios(t *testing.T) {
	yesterday := testNow.Add(-24 * time.Hour)

	tests := []struct {
		name        string
		message     string
		interval    string
		scheduledAt time.Time
		posts       []channel.Post
		want        Verdict
		wantInMsg   string
		wantSearch  bool
	}{
		{
			name:        "plain message, no interval, no matches",
			message:     "Hello world",
			scheduledAt: testNow,
			want:        Pass(),
			wantSearch:  true,
		},
		{
			name:        "duplicate found",
			message:     "Hello world",
			scheduledAt: testNow,
			posts:       []channel.Post{{ID: "999", Username: "acme", Text: "Hello world", CreatedAt: yesterday}},
			wantInMsg:   "999",
			wantSearch:  true,
		},
		{
			name:        "url message never searched",
			message:     "Check http://x.co",
			scheduledAt: testNow,
			want:        Pass(),
		},
		{
			name:        "campaign interval conflict after channel pass",
			message:     "Check http://x.co",
			interval:    "+3 days",
			scheduledAt: testNow,
			wantInMsg:   "campaign interval",
		},
		{
			name:        "future status passes channel, long interval passes campaign",
			message:     "Hello world",
			interval:    "+10 days",
			scheduledAt: testNow.Add(time.Hour),
			want:        Pass(),
		},
		{
			name:        "duplicate reported before campaign conflict",
			message:     "Hello world",
			interval:    "+3 days",
			scheduledAt: testNow,
			posts:       []channel.Post{{ID: "42", Username: "acme", Text: "Hello world", CreatedAt: yesterday}},
			wantInMsg:   "/status/42",
			wantSearch:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := &mockSearcher{posts: tt.posts}
			e := newTestEvaluator(searcher)

			got, err := e.Evaluate(context.Background(), newStatus(tt.message, tt.interval), tt.scheduledAt)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantInMsg == "" {
				if diff := cmp.Diff(tt.want, got); diff != "" {
					t.Errorf("Evaluate() mismatch (-want +got):\n%s", diff)
				}
			} else {
				if got.OK {
					t.Fatalf("expected rejection, got pass")
				}
				if !strings.Contains(got.Message, tt.wantInMsg) {
					t.Errorf("expected message to contain %q, got %q", tt.wantInMsg, got.Message)
				}
			}
			if diff := cmp.Diff(tt.wantSearch, searcher.callCount() > 0); diff != "" {
				t.Errorf("search invocation mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEvaluateExternalErrorIsNotAVerdict(t *testing.T) {
	e := newTestEvaluator(&mockSearcher{err: &channel.ExternalAPIError{Reason: "Service Unavailable", StatusCode: 503}})

	got, err := e.Evaluate(context.Background(), newStatus("Hello world", ""), testNow)
	var apiErr *channel.ExternalAPIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected external api error, got %v", err)
	}
	if diff := cmp.Diff(Verdict{}, got); diff != "" {
		t.Errorf("expected zero verdict alongside error (-want +got):\n%s", diff)
	}
}

func TestEvaluateNilStatus(t *testing.T) {
	e := newTestEvaluator(&mockSearcher{})
	if _, err := e.Evaluate(context.Background(), nil, testNow); !errors.Is(err, ErrIncompleteContent) {
		t.Errorf("expected ErrIncompleteContent, got %v", err)
	}
}

func TestEvaluateDetachedStatus(t *testing.T) {
	tests := []struct {
		name    string
		message string
	}{
		{name: "plain message", message: "Hello world"},
		{name: "url message skips the search", message: "Check http://x.co"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := &mockSearcher{}
			e := newTestEvaluator(searcher)
			s := newStatus(tt.message, "")
			s.Operation = nil

			got, err := e.Evaluate(context.Background(), s, testNow)
			if !errors.Is(err, ErrIncompleteContent) {
				t.Fatalf("expected ErrIncompleteContent, got verdict %+v, err %v", got, err)
			}
			if diff := cmp.Diff(0, searcher.callCount()); diff != "" {
				t.Errorf("search calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIsExecutableInCampaignDetachedStatus(t *testing.T) {
	rec := &mockRecorder{}
	e := newTestEvaluator(&mockSearcher{}, WithRecorder(rec))
	s := newStatus("Check http://x.co", "+10 days")
	s.Operation.Activity = nil

	if got := e.IsExecutableInCampaign(s); got.OK {
		t.Errorf("expected a failing verdict, got %+v", got)
	}
	want := []recordedCheck{{Check: CheckCampaign, Outcome: OutcomeError}}
	if diff := cmp.Diff(want, rec.records); diff != "" {
		t.Errorf("recorded checks mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluateRecordsOutcomes(t *testing.T) {
	rec := &mockRecorder{}
	e := newTestEvaluator(&mockSearcher{}, WithRecorder(rec))

	if _, err := e.Evaluate(context.Background(), newStatus("Hello world", "+10 days"), testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []recordedCheck{
		{Check: CheckChannel, Outcome: OutcomePass},
		{Check: CheckCampaign, Outcome: OutcomePass},
		{Check: CheckEvaluate, Outcome: OutcomePass},
	}
	if diff := cmp.Diff(want, rec.records); diff != "" {
		t.Errorf("recorded checks mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluateConcurrentCalls(t *testing.T) {
	searcher := &mockSearcher{}
	e := newTestEvaluator(searcher)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Evaluate(context.Background(), newStatus("Hello world", ""), testNow); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if diff := cmp.Diff(20, searcher.callCount()); diff != "" {
		t.Errorf("search count mismatch (-want +got):\n%s", diff)
	}
}

func TestStatusURL(t *testing.T) {
	e := newTestEvaluator(&mockSearcher{}, WithWebURL("https://x.com/"))
	if diff := cmp.Diff("https://x.com/acme/status/1", e.StatusURL("acme", "1")); diff != "" {
		t.Errorf("StatusURL() mismatch (-want +got):\n%s", diff)
	}
}
