package utilities_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/antonio-alexander/go-blog-pages/internal"
	"github.com/antonio-alexander/go-blog-pages/internal/utilities"

	"github.com/stretchr/testify/assert"
)

func TestLogger(t *testing.T) {
	var buffer bytes.Buffer

	ctx := internal.CtxWithCorrelationId(context.TODO(), "abc123")
	logger := utilities.NewLogger(&buffer)

	//unconfigured loggers are silent
	logger.Error(ctx, "should not be logged")
	assert.Empty(t, buffer.String())

	err := logger.Configure(map[string]string{"LOG_LEVEL": "info"})
	assert.Nil(t, err)
	logger.Info(ctx, "hello %s", "world")
	assert.Contains(t, buffer.String(), "[info] (abc123) hello world")
	buffer.Reset()
	logger.Debug(ctx, "too verbose")
	assert.Empty(t, buffer.String())
	logger.Error(context.TODO(), "failure")
	assert.Contains(t, buffer.String(), "[error] failure")
}

func TestTimers(t *testing.T) {
	timers := utilities.NewTimers()

	index := timers.Start("index")
	assert.Equal(t, 0, index)
	time.Sleep(time.Millisecond)
	elapsed := timers.Stop("index", index)
	assert.Greater(t, elapsed, int64(0))
	assert.Equal(t, int64(-1), timers.Stop("index", 5))
	assert.Equal(t, int64(-1), timers.Stop("contact", 0))

	//a running timer shouldn't affect the average
	_ = timers.Start("index")
	result := timers.ReadAll()
	assert.Equal(t, elapsed, result.Totals["index"])
	assert.Equal(t, elapsed, result.Averages["index"])

	timers.Clear()
	result = timers.ReadAll()
	assert.Empty(t, result.Totals)
}

func TestCounter(t *testing.T) {
	counter := utilities.NewCounter()

	hit, miss := counter.Read("index")
	assert.Equal(t, -1, hit)
	assert.Equal(t, -1, miss)
	assert.Equal(t, 1, counter.IncrementMiss("index"))
	assert.Equal(t, 1, counter.IncrementHit("index"))
	assert.Equal(t, 2, counter.IncrementHit("index"))
	hit, miss = counter.Read("index")
	assert.Equal(t, 2, hit)
	assert.Equal(t, 1, miss)
	counters := counter.ReadAll()
	assert.Equal(t, 2, counters.CounterHits["index"])
	assert.Equal(t, 1, counters.CounterMisses["index"])
	counter.Reset()
	hit, _ = counter.Read("index")
	assert.Equal(t, -1, hit)
}

func TestMetrics(t *testing.T) {
	metrics := utilities.NewMetrics()
	metrics.ObserveRequest("/contact", http.MethodGet, http.StatusOK, time.Millisecond)
	metrics.IncrementCache(utilities.CacheResultHit)

	server := httptest.NewServer(metrics.Handler())
	defer server.Close()
	response, err := http.Get(server.URL)
	if !assert.Nil(t, err) {
		assert.FailNow(t, "unable to scrape metrics")
	}
	defer response.Body.Close()
	bytes, err := io.ReadAll(response.Body)
	assert.Nil(t, err)
	body := string(bytes)
	assert.Contains(t, body, `go_blog_pages_http_requests_total{method="GET",route="/contact",status="200"} 1`)
	assert.Contains(t, body, `go_blog_pages_page_cache_total{result="hit"} 1`)
	assert.Contains(t, body, "go_blog_pages_http_request_duration_seconds")
}
