package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/antonio-alexander/go-blog-pages/internal"
	"github.com/antonio-alexander/go-blog-pages/internal/cache"
	"github.com/antonio-alexander/go-blog-pages/internal/data"
	"github.com/antonio-alexander/go-blog-pages/internal/logic"
	"github.com/antonio-alexander/go-blog-pages/internal/pages"
	"github.com/antonio-alexander/go-blog-pages/internal/service"
	"github.com/antonio-alexander/go-blog-pages/internal/utilities"

	"github.com/stretchr/testify/assert"
)

const contentTypeForm string = "application/x-www-form-urlencoded"

var envs = map[string]string{
	//cache
	"CACHE_TTL": "0",

	//logic
	"LOGIC_CACHE_ENABLED": "true",

	//service
	"SERVICE_ADDRESS":          "localhost",
	"SERVICE_PORT":             "0",
	"SERVICE_SHUTDOWN_TIMEOUT": "5",
	"SERVICE_TIMERS_ENABLED":   "true",
	"SERVICE_FORM_MAX_BYTES":   "1024",
}

type serviceTest struct {
	renderer interface {
		internal.Configurer
		internal.Opener
	}
	cache interface {
		internal.Configurer
		internal.Opener
		internal.Clearer
		cache.Cache
	}
	logic interface {
		internal.Configurer
		internal.Opener
		logic.Logic
	}
	service interface {
		internal.Configurer
		internal.Opener
		service.Service
	}
	server *httptest.Server
	client *http.Client
}

func newServiceTest() *serviceTest {
	renderer := pages.NewRenderer()
	cache := cache.NewMemory()
	counter := utilities.NewCounter()
	metrics := utilities.NewMetrics()
	logic := logic.NewLogic(renderer, cache, counter, metrics)
	service := service.NewService(logic, renderer, cache, counter,
		utilities.NewTimers(), metrics)
	return &serviceTest{
		renderer: renderer,
		cache:    cache,
		logic:    logic,
		service:  service,
		client:   &http.Client{},
	}
}

func (s *serviceTest) Configure(envs map[string]string) error {
	if err := s.renderer.Configure(envs); err != nil {
		return err
	}
	if err := s.cache.Configure(envs); err != nil {
		return err
	}
	if err := s.logic.Configure(envs); err != nil {
		return err
	}
	return s.service.Configure(envs)
}

// Open doesn't open the service, requests are served by
// an httptest server wrapping the service's handler
func (s *serviceTest) Open(ctx context.Context) error {
	if err := s.renderer.Open(ctx); err != nil {
		return err
	}
	if err := s.cache.Open(ctx); err != nil {
		return err
	}
	if err := s.logic.Open(ctx); err != nil {
		return err
	}
	s.server = httptest.NewServer(s.service.Handler())
	return nil
}

func (s *serviceTest) Close(ctx context.Context) error {
	if s.server != nil {
		s.server.Close()
	}
	if err := s.logic.Close(ctx); err != nil {
		return err
	}
	if err := s.cache.Close(ctx); err != nil {
		return err
	}
	return s.renderer.Close(ctx)
}

func (s *serviceTest) do(t *testing.T, method, route, contentType string, body io.Reader, headers ...string) (*http.Response, string) {
	request, err := http.NewRequest(method, s.server.URL+route, body)
	if !assert.Nil(t, err) {
		assert.FailNow(t, "unable to create request")
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		request.Header.Set(headers[i], headers[i+1])
	}
	response, err := s.client.Do(request)
	if !assert.Nil(t, err) {
		assert.FailNow(t, "unable to execute request")
	}
	defer response.Body.Close()
	bytes, err := io.ReadAll(response.Body)
	assert.Nil(t, err)
	return response, string(bytes)
}

func (s *serviceTest) submit(t *testing.T, body string) (*http.Response, data.Form) {
	form := data.Form{}
	response, responseBody := s.do(t, http.MethodPost, data.RouteFormHandler,
		contentTypeForm, strings.NewReader(body))
	if response.StatusCode == http.StatusOK {
		err := json.Unmarshal([]byte(responseBody), &form)
		assert.Nil(t, err)
	}
	return response, form
}

func (s *serviceTest) TestPages(t *testing.T) {
	//index
	response, body := s.do(t, http.MethodGet, data.RouteIndex, "", nil)
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Contains(t, response.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, data.IndexName)
	assert.Contains(t, body, data.IndexGender)
	assert.NotEmpty(t, response.Header.Get(data.HeaderCorrelationId))

	//contact
	response, body = s.do(t, http.MethodGet, data.RouteContact, "", nil)
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Contains(t, body, "<h1>Contact</h1>")
	assert.Contains(t, body, `action="`+data.RouteFormHandler+`"`)

	//employee
	for _, id := range []string{"42", "", "abc-DEF_123.~", "José Núñez", "a:b@c",
		"..", ".", "a//b", "a/b/..", "x;y"} {
		response, body = s.do(t, http.MethodGet, data.RouteEmployee+"/"+url.PathEscape(id), "", nil)
		assert.Equal(t, http.StatusOK, response.StatusCode, id)
		assert.Contains(t, body, `<span id="employee-id">`+id+`</span>`, id)
	}

	//wrong methods
	response, _ = s.do(t, http.MethodPost, data.RouteIndex, "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, response.StatusCode)
	response, _ = s.do(t, http.MethodDelete, data.RouteContact, "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, response.StatusCode)

	//dot segments aren't cleaned
	response, body = s.do(t, http.MethodGet, data.RouteEmployee+"/%2E%2E", "", nil)
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Contains(t, body, `<span id="employee-id">..</span>`)

	//unknown route, still gets a correlation id
	response, _ = s.do(t, http.MethodGet, "/does-not-exist", "", nil)
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
	assert.NotEmpty(t, response.Header.Get(data.HeaderCorrelationId))
	correlationId := internal.GenerateId()
	response, _ = s.do(t, http.MethodGet, "/does-not-exist", "", nil,
		data.HeaderCorrelationId, correlationId)
	assert.Equal(t, correlationId, response.Header.Get(data.HeaderCorrelationId))

	//correlation id is echoed
	correlationId = internal.GenerateId()
	response, _ = s.do(t, http.MethodGet, data.RouteContact, "", nil,
		data.HeaderCorrelationId, correlationId)
	assert.Equal(t, correlationId, response.Header.Get(data.HeaderCorrelationId))
}

func (s *serviceTest) TestFormHandler(t *testing.T) {
	//scenario
	response, body := s.do(t, http.MethodPost, data.RouteFormHandler,
		contentTypeForm, strings.NewReader("name=Alice&role=admin"))
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, "application/json; charset=utf-8", response.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"name": "Alice", "role": "admin"}`, body)

	//round trip
	submitted := data.Form{
		"first_name": "Jack",
		"last_name":  "Flex",
		"email":      "jack.flex@example.com",
		"message":    "hello & goodbye = 100%",
		"empty":      "",
	}
	response, form := s.submit(t, submitted.ToValues().Encode())
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, submitted, form)

	//empty body
	response, body = s.do(t, http.MethodPost, data.RouteFormHandler, "", nil)
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, "{}", body)
	response, body = s.do(t, http.MethodPost, data.RouteFormHandler,
		contentTypeForm, strings.NewReader(""))
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, "{}", body)

	//semicolons are part of the value, & is the only separator
	response, body = s.do(t, http.MethodPost, data.RouteFormHandler,
		contentTypeForm, strings.NewReader("note=a;b"))
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.JSONEq(t, `{"note": "a;b"}`, body)
	response, form = s.submit(t, "name=Alice&note=x;y&role=admin")
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, data.Form{"name": "Alice", "note": "x;y", "role": "admin"}, form)
	response, form = s.submit(t, "a;b=c&&flag&plus=1+2")
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, data.Form{"a;b": "c", "flag": "", "plus": "1 2"}, form)

	//duplicate keys, first wins
	response, form = s.submit(t, "name=Alice&name=Bob")
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, data.Form{"name": "Alice"}, form)

	//query string isn't part of the form
	response, body = s.do(t, http.MethodPost, data.RouteFormHandler+"?extra=1",
		contentTypeForm, strings.NewReader("a=b"))
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.JSONEq(t, `{"a": "b"}`, body)

	//multipart
	buffer := &bytes.Buffer{}
	writer := multipart.NewWriter(buffer)
	_ = writer.WriteField("name", "Alice")
	_ = writer.WriteField("role", "admin")
	fileWriter, _ := writer.CreateFormFile("attachment", "notes.txt")
	_, _ = fileWriter.Write([]byte("ignored"))
	_ = writer.Close()
	multipartBody := buffer.Bytes()
	response, body = s.do(t, http.MethodPost, data.RouteFormHandler,
		writer.FormDataContentType(), bytes.NewReader(multipartBody))
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.JSONEq(t, `{"name": "Alice", "role": "admin"}`, body)

	//the query string is ignored even when it can't be parsed
	response, body = s.do(t, http.MethodPost, data.RouteFormHandler+"?a=1;b=2",
		writer.FormDataContentType(), bytes.NewReader(multipartBody))
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.JSONEq(t, `{"name": "Alice", "role": "admin"}`, body)
	response, body = s.do(t, http.MethodPost, data.RouteFormHandler+"?a=1;b=2",
		contentTypeForm, strings.NewReader("note=a;b"))
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.JSONEq(t, `{"note": "a;b"}`, body)

	//malformed
	response, body = s.do(t, http.MethodPost, data.RouteFormHandler,
		contentTypeForm, strings.NewReader("name=%zz"))
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	assert.Contains(t, body, `"error"`)
	response, _ = s.do(t, http.MethodPost, data.RouteFormHandler,
		"multipart/form-data", strings.NewReader("name=Alice"))
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)

	//too large
	response, _ = s.do(t, http.MethodPost, data.RouteFormHandler,
		contentTypeForm, strings.NewReader("name="+strings.Repeat("a", 2048)))
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)

	//wrong method
	response, _ = s.do(t, http.MethodGet, data.RouteFormHandler, "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, response.StatusCode)
}

func (s *serviceTest) TestOperations(t *testing.T) {
	var counters data.CacheCounters
	var timers data.Timers

	//reset
	response, _ := s.do(t, http.MethodDelete, data.RouteCache, "", nil)
	assert.Equal(t, http.StatusNoContent, response.StatusCode)
	response, _ = s.do(t, http.MethodDelete, data.RouteCacheCounters, "", nil)
	assert.Equal(t, http.StatusNoContent, response.StatusCode)
	response, _ = s.do(t, http.MethodDelete, data.RouteTimers, "", nil)
	assert.Equal(t, http.StatusNoContent, response.StatusCode)

	//miss then hit
	for i := 0; i < 2; i++ {
		response, _ = s.do(t, http.MethodGet, data.RouteEmployee+"/42", "", nil)
		assert.Equal(t, http.StatusOK, response.StatusCode)
	}
	response, body := s.do(t, http.MethodGet, data.RouteCacheCounters, "", nil)
	assert.Equal(t, http.StatusOK, response.StatusCode)
	err := json.Unmarshal([]byte(body), &counters)
	assert.Nil(t, err)
	assert.Equal(t, 1, counters.CounterHits[data.TemplateEmployee])
	assert.Equal(t, 1, counters.CounterMisses[data.TemplateEmployee])

	//timers
	response, body = s.do(t, http.MethodGet, data.RouteTimers, "", nil)
	assert.Equal(t, http.StatusOK, response.StatusCode)
	err = json.Unmarshal([]byte(body), &timers)
	assert.Nil(t, err)
	assert.Contains(t, timers.Totals, "employee")

	//metrics
	response, body = s.do(t, http.MethodGet, data.RouteMetrics, "", nil)
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Contains(t, body, `route="/employee/{id:.*}"`)
	assert.Contains(t, body, `go_blog_pages_page_cache_total{result="hit"}`)

	//version
	response, body = s.do(t, http.MethodGet, data.RouteVersion, "", nil)
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Contains(t, body, "go-blog-pages")

	//no live reload outside of debug
	response, _ = s.do(t, http.MethodGet, data.RouteReload, "", nil)
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
}

func TestService(t *testing.T) {
	s := newServiceTest()

	ctx := context.TODO()
	err := s.Configure(envs)
	if !assert.Nil(t, err) {
		assert.FailNow(t, "unable to configure serviceTest")
	}
	err = s.Open(ctx)
	if !assert.Nil(t, err) {
		assert.FailNow(t, "unable to open serviceTest")
	}
	defer func() {
		if err := s.Close(ctx); err != nil {
			t.Logf("error while closing serviceTest: %s", err)
		}
	}()
	t.Run("Pages", s.TestPages)
	t.Run("FormHandler", s.TestFormHandler)
	t.Run("Operations", s.TestOperations)
}

func TestServiceTemplateError(t *testing.T) {
	ctx := context.TODO()
	directory := t.TempDir()
	err := os.WriteFile(filepath.Join(directory, "index.html"),
		[]byte(`<html><body>{{ .DoesNotExist }}</body></html>`), 0644)
	assert.Nil(t, err)

	s := newServiceTest()
	err = s.Configure(map[string]string{
		"PAGES_TEMPLATES_DIRECTORY": directory,
		"LOGIC_CACHE_ENABLED":       "true",
	})
	assert.Nil(t, err)
	err = s.Open(ctx)
	if !assert.Nil(t, err) {
		assert.FailNow(t, "unable to open serviceTest")
	}
	defer func() {
		_ = s.Close(ctx)
	}()

	//broken template
	response, body := s.do(t, http.MethodGet, data.RouteIndex, "", nil)
	assert.Equal(t, http.StatusInternalServerError, response.StatusCode)
	assert.Contains(t, body, "DoesNotExist")

	//missing template
	response, _ = s.do(t, http.MethodGet, data.RouteContact, "", nil)
	assert.Equal(t, http.StatusInternalServerError, response.StatusCode)

	//the form handler doesn't depend on templates
	response, body = s.do(t, http.MethodPost, data.RouteFormHandler,
		contentTypeForm, strings.NewReader("name=Alice"))
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.JSONEq(t, `{"name": "Alice"}`, body)
}

func TestServiceBoundedState(t *testing.T) {
	const capacity, nIds int = 8, 100

	ctx := context.TODO()
	s := newServiceTest()
	err := s.Configure(map[string]string{
		"CACHE_CAPACITY":      fmt.Sprint(capacity),
		"LOGIC_CACHE_ENABLED": "true",
	})
	assert.Nil(t, err)
	err = s.Open(ctx)
	if !assert.Nil(t, err) {
		assert.FailNow(t, "unable to open serviceTest")
	}
	defer func() {
		_ = s.Close(ctx)
	}()

	//every id is a miss
	for i := 0; i < nIds; i++ {
		response, _ := s.do(t, http.MethodGet, fmt.Sprintf(data.RouteEmployeeIdf, fmt.Sprint(i)), "", nil)
		assert.Equal(t, http.StatusOK, response.StatusCode)
	}

	//the most recent id is still cached, the first has been evicted
	response, _ := s.do(t, http.MethodGet, fmt.Sprintf(data.RouteEmployeeIdf, fmt.Sprint(nIds-1)), "", nil)
	assert.Equal(t, http.StatusOK, response.StatusCode)
	response, _ = s.do(t, http.MethodGet, fmt.Sprintf(data.RouteEmployeeIdf, "0"), "", nil)
	assert.Equal(t, http.StatusOK, response.StatusCode)

	//counters are kept per template, not per id
	var counters data.CacheCounters
	response, body := s.do(t, http.MethodGet, data.RouteCacheCounters, "", nil)
	assert.Equal(t, http.StatusOK, response.StatusCode)
	err = json.Unmarshal([]byte(body), &counters)
	assert.Nil(t, err)
	assert.Len(t, counters.CounterMisses, 1)
	assert.Len(t, counters.CounterHits, 1)
	assert.Equal(t, nIds+1, counters.CounterMisses[data.TemplateEmployee])
	assert.Equal(t, 1, counters.CounterHits[data.TemplateEmployee])
}

func TestServiceOpenClose(t *testing.T) {
	ctx := context.TODO()
	renderer := pages.NewRenderer()
	_ = renderer.Configure(map[string]string{})
	err := renderer.Open(ctx)
	assert.Nil(t, err)
	defer func() {
		_ = renderer.Close(ctx)
	}()
	l := logic.NewLogic(renderer)
	err = l.Open(ctx)
	assert.Nil(t, err)

	s := service.NewService(l)
	err = s.Configure(map[string]string{
		"SERVICE_ADDRESS": "localhost",
		"SERVICE_PORT":    "0",
	})
	assert.Nil(t, err)
	err = s.Open(ctx)
	if !assert.Nil(t, err) {
		assert.FailNow(t, "unable to open service")
	}
	address := s.Address()
	assert.NotEmpty(t, address)

	//a second service can't use the same port
	s2 := service.NewService(l)
	host, port, err := net.SplitHostPort(address)
	assert.Nil(t, err)
	err = s2.Configure(map[string]string{
		"SERVICE_ADDRESS": host,
		"SERVICE_PORT":    port,
	})
	assert.Nil(t, err)
	err = s2.Open(ctx)
	assert.NotNil(t, err)

	response, err := http.Get("http://" + address + data.RouteEmployee + "/42")
	if assert.Nil(t, err) {
		bytes, _ := io.ReadAll(response.Body)
		response.Body.Close()
		assert.Equal(t, http.StatusOK, response.StatusCode)
		assert.Contains(t, string(bytes), "42")
	}
	err = s.Close(ctx)
	assert.Nil(t, err)
	_, err = http.Get("http://" + address + data.RouteIndex)
	assert.NotNil(t, err)
}
