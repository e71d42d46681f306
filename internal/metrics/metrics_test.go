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
)

func TestRecorders(t *testing.T) {
	before := testutil.ToFloat64(evaluationErrors.WithLabelValues("percentile"))
	RecordEvaluation("percentile", time.Millisecond, errors.New("boom"))
	RecordEvaluation("percentile", time.Millisecond, nil)
	assert.Equal(t, before+1, testutil.ToFloat64(evaluationErrors.WithLabelValues("percentile")))

	RecordReport("complete", 22114894, 5)
	assert.Equal(t, float64(22114894), testutil.ToFloat64(lastReportBlock))
	assert.Equal(t, float64(5), testutil.ToFloat64(selectedQuotes))

	RecordAlert("up")
	assert.GreaterOrEqual(t, testutil.ToFloat64(alertsTotal.WithLabelValues("up")), float64(1))
}

func TestHandler(t *testing.T) {
	RecordReport("complete", 1, 1)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "quoteoracle_reports_total"))
}
