package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/swarmfire/internal/metrics"
)

func TestExporterRecord(t *testing.T) {
	exp := metrics.NewExporter()

	exp.Record(metrics.Outcome{Label: "/api/feed", Method: "GET", Latency: 10 * time.Millisecond, Success: true, StatusCode: 200})
	exp.Record(metrics.Outcome{Label: "/api/feed", Method: "GET", Latency: 20 * time.Millisecond, StatusCode: 500})
	exp.Record(metrics.Outcome{Label: "/api/friends (add)", Skipped: true})

	count, err := testutil.GatherAndCount(exp.Registry(), "swarmfire_outcomes_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = testutil.GatherAndCount(exp.Registry(), "swarmfire_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "skipped outcomes must not be observed")
}

func TestExporterHandler(t *testing.T) {
	exp := metrics.NewExporter()
	exp.SetAgents("ACTIVE", 4)
	exp.Record(metrics.Outcome{Label: "/api/feed", Method: "GET", Latency: time.Millisecond, Success: true})

	srv := httptest.NewServer(exp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, `swarmfire_agents{state="ACTIVE"} 4`), text)
	assert.True(t, strings.Contains(text, `swarmfire_outcomes_total{method="GET",result="success",route="/api/feed"} 1`), text)
}
