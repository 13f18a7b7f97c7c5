package rpmetrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jeremywhuff/restify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStageLabel(t *testing.T) {
	assert.Equal(t, "read_one", StageLabel(`  => read_one(["restify.executor"]) =>`))
	assert.Equal(t, "new_executor", StageLabel(`new_executor(catalog) => ["restify.executor"]`))
	assert.Equal(t, "If", StageLabel("If => then/else"))
	assert.Equal(t, "anonymous", StageLabel("  => "))
}

func TestLoggerCounts(t *testing.T) {

	l := New(prometheus.NewRegistry())

	l.LogMessage("Starting execution chain...")
	l.LogMessage("Ignoring unknown fields: X")
	l.LogStageComplete(true, time.Millisecond, "  => read_many() =>", nil)
	l.LogStageComplete(false, time.Millisecond, "  => read_many() =>", nil)
	l.LogStageComplete(false, time.Millisecond, "  => read_many() =>", nil)
	l.LogStageError(&restify.StageError{Code: http.StatusNotFound})

	assert.Equal(t, 1.0, testutil.ToFloat64(l.messages))
	assert.Equal(t, 1.0, testutil.ToFloat64(l.stages.WithLabelValues("read_many", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(l.stages.WithLabelValues("read_many", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(l.errors.WithLabelValues("404")))
	assert.Equal(t, 1, testutil.CollectAndCount(l.duration))
}

func TestMiddleware(t *testing.T) {

	gin.SetMode(gin.TestMode)
	l := New(prometheus.NewRegistry())

	r := gin.New()
	r.Use(l.Middleware())
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, target := range []string{"/items/1", "/items/2", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(l.requests.WithLabelValues("GET", "/items/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(l.requests.WithLabelValues("GET", "unmatched", "404")))
}
