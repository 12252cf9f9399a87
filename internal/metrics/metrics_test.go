package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"statusbot/internal/eligibility"
	"statusbot/internal/job"
)

var (
	_ eligibility.Recorder = (*Collector)(nil)
	_ job.Recorder         = (*Collector)(nil)
)

func TestCounters(t *testing.T) {
	c := New(nil)

	c.RecordCheck("channel", "pass")
	c.RecordCheck("channel", "pass")
	c.RecordCheck("campaign", "fail")
	c.RecordPublish("published")

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{name: "channel pass", got: testutil.ToFloat64(c.checksTotal.WithLabelValues("channel", "pass")), want: 2},
		{name: "campaign fail", got: testutil.ToFloat64(c.checksTotal.WithLabelValues("campaign", "fail")), want: 1},
		{name: "published", got: testutil.ToFloat64(c.publishTotal.WithLabelValues("published")), want: 1},
		{name: "rejected untouched", got: testutil.ToFloat64(c.publishTotal.WithLabelValues("rejected")), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.got); diff != "" {
				t.Errorf("counter mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHandler(t *testing.T) {
	c := New(nil)
	c.RecordPublish("external_error")

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), `statusbot_publish_total{outcome="external_error"} 1`) {
		t.Errorf("expected publish counter in output, got:\n%s", body)
	}
}
