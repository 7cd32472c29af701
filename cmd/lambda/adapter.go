package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/stefando/streamupload/internal/auth"
)

// authorizerPrincipalKey is the authorizer context entry naming the caller.
const authorizerPrincipalKey = "principal"

// createHTTPRequest creates an http.Request from an API Gateway event.
func createHTTPRequest(ctx context.Context, req events.APIGatewayProxyRequest) (*http.Request, error) {
	var body io.Reader
	if req.Body != "" {
		if req.IsBase64Encoded {
			raw, err := base64.StdEncoding.DecodeString(req.Body)
			if err != nil {
				return nil, err
			}
			body = bytes.NewReader(raw)
		} else {
			body = strings.NewReader(req.Body)
		}
	}

	// Determine the full request path
	path := req.Path
	for param, value := range req.PathParameters {
		path = strings.ReplaceAll(path, "{"+param+"}", value)
	}

	// Caller identity established by the REQUEST authorizer
	if p, ok := req.RequestContext.Authorizer[authorizerPrincipalKey].(string); ok && p != "" {
		ctx = auth.WithPrincipal(ctx, p)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.HTTPMethod, path, body)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	for param, values := range req.MultiValueQueryStringParameters {
		for _, v := range values {
			query.Add(param, v)
		}
	}
	for param, value := range req.QueryStringParameters {
		if _, ok := query[param]; !ok {
			query.Add(param, value)
		}
	}
	httpReq.URL.RawQuery = query.Encode()

	for key, values := range req.MultiValueHeaders {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	for key, value := range req.Headers {
		if httpReq.Header.Get(key) == "" {
			httpReq.Header.Set(key, value)
		}
	}
	if ip := req.RequestContext.Identity.SourceIP; ip != "" {
		httpReq.RemoteAddr = ip
	}

	return httpReq, nil
}

// responseRecorder captures the router's HTTP response.
type responseRecorder struct {
	header     http.Header
	body       bytes.Buffer
	statusCode int
	written    bool
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{
		header:     http.Header{},
		statusCode: http.StatusOK,
	}
}

// Header implements the http.ResponseWriter interface
func (r *responseRecorder) Header() http.Header {
	return r.header
}

// Write implements the http.ResponseWriter interface
func (r *responseRecorder) Write(body []byte) (int, error) {
	r.written = true
	return r.body.Write(body)
}

// WriteHeader implements the http.ResponseWriter interface
func (r *responseRecorder) WriteHeader(statusCode int) {
	if r.written {
		return
	}
	r.statusCode = statusCode
	r.written = true
}

func (r *responseRecorder) toProxyResponse() events.APIGatewayProxyResponse {
	headers := make(map[string]string, len(r.header))
	for k, v := range r.header {
		headers[k] = strings.Join(v, ",")
	}
	return events.APIGatewayProxyResponse{
		StatusCode:        r.statusCode,
		Headers:           headers,
		MultiValueHeaders: map[string][]string(r.header),
		Body:              r.body.String(),
	}
}
