// Package rpmetrics records pipeline and HTTP metrics with Prometheus.
package rpmetrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jeremywhuff/restify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "restify"

// Logger is a restify.Logger that counts stages and stage errors. Pair it with
// restify.DefaultLogger through restify.MultiLogger to keep the console table.
type Logger struct {
	stages   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
	messages prometheus.Counter

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// New registers the collectors on reg, or on the default registerer when reg is nil.
func New(reg prometheus.Registerer) *Logger {

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Logger{
		stages: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stages_total",
				Help:      "Total number of pipeline stages run",
			},
			[]string{"stage", "success"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Pipeline stage latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_errors_total",
				Help:      "Total number of stage errors by status code",
			},
			[]string{"code"},
		),
		messages: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chains_total",
				Help:      "Total number of pipelines started",
			},
		),
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

func (l *Logger) LogMessage(msg string) {
	if strings.HasPrefix(msg, "Starting execution chain") {
		l.messages.Inc()
	}
}

func (l *Logger) LogStageStart(print string, in any) {}

func (l *Logger) LogStageComplete(success bool, elapsed time.Duration, print string, out any) {
	stage := StageLabel(print)
	l.stages.WithLabelValues(stage, strconv.FormatBool(success)).Inc()
	l.duration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (l *Logger) LogStageError(e *restify.StageError) {
	l.errors.WithLabelValues(strconv.Itoa(e.Code)).Inc()
}

// Middleware counts requests by route pattern and status.
func (l *Logger) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		t := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		l.requests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		l.latency.WithLabelValues(c.Request.Method, path).Observe(time.Since(t).Seconds())
	}
}

// StageLabel reduces a printed stage such as `  => read_one(["restify.executor"]) =>`
// to its name, read_one.
func StageLabel(print string) string {
	s := strings.TrimSpace(print)
	s = strings.TrimPrefix(s, "=>")
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "( "); i >= 0 {
		s = s[:i]
	}
	if s == "" || s == "=>" {
		return "anonymous"
	}
	return s
}
