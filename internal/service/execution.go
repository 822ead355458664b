package service

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/antonio-alexander/go-blog-pages/internal"
	"github.com/antonio-alexander/go-blog-pages/internal/data"

	"github.com/pkg/errors"
)

const (
	contentTypeJson string = "application/json; charset=utf-8"
	contentTypeHtml string = "text/html; charset=utf-8"
)

const (
	mediaTypeMultipart  string = "multipart/form-data"
	mediaTypeUrlEncoded string = "application/x-www-form-urlencoded"
)

var ErrFormMalformed = errors.New("form malformed")

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack is required for the websocket upgrade of the reload route
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer doesn't support hijacking")
	}
	if s.status == 0 {
		s.status = http.StatusSwitchingProtocols
	}
	return hijacker.Hijack()
}

func getCorrelationId(request *http.Request) string {
	if correlationId := request.Header.Get(data.HeaderCorrelationId); correlationId != "" {
		return correlationId
	}
	return internal.GenerateId()
}

func errorStatus(err error) int {
	switch {
	default:
		return http.StatusInternalServerError
	case errors.Is(err, ErrFormMalformed):
		return http.StatusBadRequest
	}
}

// parseUrlEncoded splits the body on & only, a ; is part of the field
// name or value rather than a separator
func parseUrlEncoded(body string) (url.Values, error) {
	values := url.Values{}
	for body != "" {
		var field string

		field, body, _ = strings.Cut(body, "&")
		if field == "" {
			continue
		}
		key, value, _ := strings.Cut(field, "=")
		key, err := url.QueryUnescape(key)
		if err != nil {
			return nil, err
		}
		value, err = url.QueryUnescape(value)
		if err != nil {
			return nil, err
		}
		values.Add(key, value)
	}
	return values, nil
}

// formFromRequest reads the fields from the body of the request (the query
// string is ignored), files within multipart forms are ignored; bodies of
// any other media type have no fields
func formFromRequest(writer http.ResponseWriter, request *http.Request, maxBytes int64) (data.Form, error) {
	request.Body = http.MaxBytesReader(writer, request.Body, maxBytes)
	mediaType, params, _ := mime.ParseMediaType(request.Header.Get("Content-Type"))
	switch mediaType {
	default:
		return data.Form{}, nil
	case mediaTypeUrlEncoded:
		bytes, err := io.ReadAll(request.Body)
		if err != nil {
			return nil, errors.Wrap(ErrFormMalformed, err.Error())
		}
		values, err := parseUrlEncoded(string(bytes))
		if err != nil {
			return nil, errors.Wrap(ErrFormMalformed, err.Error())
		}
		return data.FormFromValues(values), nil
	case mediaTypeMultipart:
		boundary := params["boundary"]
		if boundary == "" {
			return nil, errors.Wrap(ErrFormMalformed, "multipart boundary missing")
		}
		form, err := multipart.NewReader(request.Body, boundary).ReadForm(maxBytes)
		if err != nil {
			return nil, errors.Wrap(ErrFormMalformed, err.Error())
		}
		defer func() {
			_ = form.RemoveAll()
		}()
		return data.FormFromValues(form.Value), nil
	}
}

func handleResponse(writer http.ResponseWriter, err error, items ...interface{}) {
	var bytes []byte

	if err == nil {
		switch {
		default:
			bytes, err = json.Marshal(items[0])
		case len(items) <= 0 || items[0] == nil:
			writer.WriteHeader(http.StatusNoContent)
			return
		}
	}
	if err != nil {
		writer.Header().Set("Content-Type", contentTypeJson)
		writer.WriteHeader(errorStatus(err))
		bytes, err = json.Marshal(&data.Error{Error: err.Error()})
		if err != nil {
			fmt.Printf("error handling response: %s\n", err)
			return
		}
		if _, err := writer.Write(bytes); err != nil {
			fmt.Printf("error handling response: %s\n", err)
		}
		return
	}
	writer.Header().Set("Content-Type", contentTypeJson)
	if _, err := writer.Write(bytes); err != nil {
		fmt.Printf("error handling response: %s\n", err)
	}
}

// handlePage writes a rendered page, errors are written as plain text
// since the client is most likely a browser
func handlePage(writer http.ResponseWriter, err error, page *data.Page) {
	if err != nil {
		http.Error(writer, err.Error(), errorStatus(err))
		return
	}
	writer.Header().Set("Content-Type", contentTypeHtml)
	if _, err := writer.Write(page.Html); err != nil {
		fmt.Printf("error handling response: %s\n", err)
	}
}
