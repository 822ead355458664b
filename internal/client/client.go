package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/antonio-alexander/go-blog-pages/internal"
	"github.com/antonio-alexander/go-blog-pages/internal/cache"
	"github.com/antonio-alexander/go-blog-pages/internal/data"
	"github.com/antonio-alexander/go-blog-pages/internal/utilities"

	"github.com/pkg/errors"
)

const contentTypeForm string = "application/x-www-form-urlencoded"

// the service listens on localhost:5000 by default
const (
	defaultAddress string = "localhost"
	defaultPort    string = "5000"
)

type Client interface {
	Version(ctx context.Context) (string, error)
	Index(ctx context.Context) (*data.Page, error)
	Employee(ctx context.Context, id string) (*data.Page, error)
	Contact(ctx context.Context) (*data.Page, error)
	FormSubmit(ctx context.Context, values url.Values) (data.Form, error)
	CacheClear(ctx context.Context) error
	CacheCountersRead(ctx context.Context) (*data.CacheCounters, error)
	CacheCountersClear(ctx context.Context) error
	TimersRead(ctx context.Context) (*data.Timers, error)
	TimersClear(ctx context.Context) error
}

type client struct {
	sync.RWMutex
	config struct {
		protocol      string
		address       string
		port          string
		timeout       int64
		sslCaFile     string
		sslCrtFile    string
		sslKeyFile    string
		cacheDisabled bool
	}
	address string
	cache   cache.Cache
	utilities.Logger
	*http.Client
}

func NewClient(parameters ...any) interface {
	internal.Configurer
	internal.Opener
	Client
} {
	c := &client{
		Client: &http.Client{},
		Logger: utilities.NewLogger(),
	}
	c.config.protocol = "http"
	c.config.address = defaultAddress
	c.config.port = defaultPort
	for _, parameter := range parameters {
		switch p := parameter.(type) {
		case cache.Cache:
			c.cache = p
		case utilities.Logger:
			c.Logger = p
		}
	}
	return c
}

func (c *client) cacheEnabled() bool {
	return c.cache != nil && !c.config.cacheDisabled
}

func (c *client) doRequest(ctx context.Context, uri, method string, item any) ([]byte, error) {
	var contentType string
	var body io.Reader

	switch d := item.(type) {
	case url.Values:
		switch method {
		default:
			uri = uri + "?" + d.Encode()
		case http.MethodPut, http.MethodPost, http.MethodPatch:
			body = strings.NewReader(d.Encode())
			contentType = contentTypeForm
		}
	}
	request, err := http.NewRequestWithContext(ctx, method, uri, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	if correlationId := internal.CorrelationIdFromCtx(ctx); correlationId != "" {
		request.Header.Set(data.HeaderCorrelationId, correlationId)
	}
	response, err := c.Do(request)
	if err != nil {
		return nil, err
	}
	bytes, err := io.ReadAll(response.Body)
	defer response.Body.Close()
	if err != nil {
		return nil, err
	}
	switch response.StatusCode {
	default:
		var e data.Error

		if err := json.Unmarshal(bytes, &e); err != nil || e.Error == "" {
			return nil, errors.Errorf("status code: %d; %s",
				response.StatusCode, strings.TrimSpace(string(bytes)))
		}
		return nil, errors.Errorf("status code: %d; %s", response.StatusCode, e.Error)
	case http.StatusOK, http.StatusNoContent:
		return bytes, nil
	}
}

func (c *client) page(ctx context.Context, name, key, route string) (*data.Page, error) {
	if c.cacheEnabled() {
		page, err := c.cache.PageRead(ctx, key)
		if err == nil {
			return page, nil
		}
		c.Trace(ctx, "error while reading page (%s) from cache: %s", key, err)
	}
	bytes, err := c.doRequest(ctx, c.address+route, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	page := &data.Page{Name: name, Html: bytes}
	if c.cacheEnabled() {
		if err := c.cache.PageWrite(ctx, key, page); err != nil {
			c.Error(ctx, "error while writing page (%s) to cache: %s", key, err)
		}
	}
	return page, nil
}

func (c *client) Configure(envs map[string]string) error {
	if address, ok := envs["CLIENT_ADDRESS"]; ok && address != "" {
		c.config.address = address
	}
	if port, ok := envs["CLIENT_PORT"]; ok && port != "" {
		c.config.port = port
	}
	if protocol, ok := envs["CLIENT_PROTOCOL"]; ok && protocol != "" {
		c.config.protocol = protocol
	}
	if timeout, ok := envs["CLIENT_TIMEOUT"]; ok && timeout != "" {
		i, err := strconv.ParseInt(timeout, 10, 64)
		if err != nil {
			return err
		}
		c.config.timeout = i
	}
	if sslCaFile, ok := envs["SSL_CA_FILE"]; ok {
		c.config.sslCaFile = sslCaFile
	}
	if sslKeyFile, ok := envs["SSL_KEY_FILE"]; ok {
		c.config.sslKeyFile = sslKeyFile
	}
	if sslCrtFile, ok := envs["SSL_CRT_FILE"]; ok {
		c.config.sslCrtFile = sslCrtFile
	}
	if cacheDisabled, ok := envs["CLIENT_CACHE_DISABLED"]; ok {
		c.config.cacheDisabled, _ = strconv.ParseBool(cacheDisabled)
	}
	return nil
}

func (c *client) Open(ctx context.Context) error {
	c.Lock()
	defer c.Unlock()

	switch c.config.protocol {
	default:
		return errors.Errorf("unsupported protocol: %s", c.config.protocol)
	case "http", "https":
		c.address = fmt.Sprintf("%s://%s", c.config.protocol,
			net.JoinHostPort(c.config.address, c.config.port))
	}
	if !c.cacheEnabled() {
		c.Debug(ctx, "client: cache disabled")
	}
	c.Client.Timeout = time.Duration(c.config.timeout) * time.Second
	tlsConfig, err := internal.GetTlsConfig(c.config.sslCrtFile,
		c.config.sslKeyFile, c.config.sslCaFile)
	if err != nil {
		return err
	}
	if tlsConfig != nil {
		c.Client.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	}
	return nil
}

func (c *client) Close(ctx context.Context) error {
	c.Lock()
	defer c.Unlock()

	c.Client.CloseIdleConnections()
	return nil
}

func (c *client) Version(ctx context.Context) (string, error) {
	bytes, err := c.doRequest(ctx, c.address+data.RouteVersion, http.MethodGet, nil)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func (c *client) Index(ctx context.Context) (*data.Page, error) {
	return c.page(ctx, data.TemplateIndex, data.PageKeyIndex, data.RouteIndex)
}

func (c *client) Employee(ctx context.Context, id string) (*data.Page, error) {
	return c.page(ctx, data.TemplateEmployee, data.PageKeyEmployee+id,
		fmt.Sprintf(data.RouteEmployeeIdf, url.PathEscape(id)))
}

func (c *client) Contact(ctx context.Context) (*data.Page, error) {
	return c.page(ctx, data.TemplateContact, data.PageKeyContact, data.RouteContact)
}

func (c *client) FormSubmit(ctx context.Context, values url.Values) (data.Form, error) {
	if values == nil {
		values = url.Values{}
	}
	bytes, err := c.doRequest(ctx, c.address+data.RouteFormHandler,
		http.MethodPost, values)
	if err != nil {
		return nil, err
	}
	form := data.Form{}
	if err := json.Unmarshal(bytes, &form); err != nil {
		return nil, err
	}
	return form, nil
}

func (c *client) CacheClear(ctx context.Context) error {
	if _, err := c.doRequest(ctx, c.address+data.RouteCache, http.MethodDelete, nil); err != nil {
		return err
	}
	return nil
}

func (c *client) CacheCountersRead(ctx context.Context) (*data.CacheCounters, error) {
	bytes, err := c.doRequest(ctx, c.address+data.RouteCacheCounters, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	response := &data.CacheCounters{}
	if err := json.Unmarshal(bytes, response); err != nil {
		return nil, err
	}
	return response, nil
}

func (c *client) CacheCountersClear(ctx context.Context) error {
	if _, err := c.doRequest(ctx, c.address+data.RouteCacheCounters, http.MethodDelete, nil); err != nil {
		return err
	}
	return nil
}

func (c *client) TimersRead(ctx context.Context) (*data.Timers, error) {
	bytes, err := c.doRequest(ctx, c.address+data.RouteTimers, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	response := &data.Timers{}
	if err := json.Unmarshal(bytes, response); err != nil {
		return nil, err
	}
	return response, nil
}

func (c *client) TimersClear(ctx context.Context) error {
	if _, err := c.doRequest(ctx, c.address+data.RouteTimers, http.MethodDelete, nil); err != nil {
		return err
	}
	return nil
}
