package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/relay"
)

func TestRegistry_RecordPublishBatch(t *testing.T) {
	r := NewRegistry()

	records := []relay.Record{{ID: "a", Topic: "orders"}, {ID: "b", Topic: "orders"}}
	res, err := relay.Aggregate(records, []relay.Outcome{
		relay.DeliveredOutcome(relay.DeliveryMetadata{Topic: "orders"}),
		relay.SubmissionFailure(errors.New("rejected")),
	})
	require.NoError(t, err)

	r.RecordPublishBatch([]string{"orders", "orders"}, res, 10*time.Millisecond, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.batchTotal.WithLabelValues("partial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.recordOutcomes.WithLabelValues("orders", "delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.recordOutcomes.WithLabelValues("orders", "submission_failed")))

	r.RecordPublishBatch(nil, relay.BatchResult{}, time.Millisecond, relay.ErrClosed)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.batchTotal.WithLabelValues("error")))
}

func TestRegistry_RecordRoute(t *testing.T) {
	r := NewRegistry()

	r.RecordRoute("failure", 3, time.Millisecond, nil)
	r.RecordRoute("failure", 2, time.Millisecond, errors.New("down"))

	assert.Equal(t, 3.0, testutil.ToFloat64(r.routeTotal.WithLabelValues("failure", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.routeTotal.WithLabelValues("failure", "error")))
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.SetSystemInfo("test", "fault")
	r.SetBreakerState("amqp", 2)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "relay_system_info"))
	assert.True(t, strings.Contains(body, `relay_breaker_state{name="amqp"} 2`))
}
