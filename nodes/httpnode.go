package nodes

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/flowforge/workflowengine/engine"
	"github.com/flowforge/workflowengine/retrieval"
	"github.com/sony/gobreaker"
)

const defaultHTTPTimeout = 30 * time.Second

// httpBreakers keeps one gobreaker.CircuitBreaker per interpolated host, so
// a single misbehaving downstream endpoint trips independently of every
// other host an http-request node might target.
type httpBreakers struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	client   *http.Client
}

func newHTTPBreakers() *httpBreakers {
	return &httpBreakers{breakers: make(map[string]*gobreaker.CircuitBreaker), client: &http.Client{}}
}

func (h *httpBreakers) forHost(host string) *gobreaker.CircuitBreaker {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cb, ok := h.breakers[host]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "http-request:" + host,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	h.breakers[host] = cb
	return cb
}

// newHTTPNode builds the "http-request" node definition: interpolates URL
// and body against input data, enforces method and per-call timeout,
// returns {status, statusText, headers, body}, and fails when !ok unless
// failOnError is explicitly false.
func newHTTPNode() engine.NodeDefinition {
	breakers := newHTTPBreakers()
	return engine.NodeDefinition{
		Type:     "http-request",
		Validate: validateHTTPConfig,
		Execute: func(ctx context.Context, in engine.Input, _ *engine.ExecutionContext) (engine.Output, error) {
			return executeHTTP(ctx, breakers, in)
		},
	}
}

func validateHTTPConfig(config engine.NodeConfig) engine.ValidationResult {
	var errs []string
	if getString(config, "url", "") == "" {
		errs = append(errs, "http-request node requires \"url\"")
	}
	method := strings.ToUpper(getString(config, "method", "GET"))
	switch method {
	case "GET", "POST", "PUT", "PATCH", "DELETE", "HEAD":
	default:
		errs = append(errs, "http-request node has unsupported method: "+method)
	}
	return valid(errs...)
}

func executeHTTP(ctx context.Context, breakers *httpBreakers, in engine.Input) (engine.Output, error) {
	config, _ := in.Metadata["config"].(engine.NodeConfig)
	nodeID, _ := in.Metadata["nodeId"].(string)

	url := retrieval.Interpolate(getString(config, "url", ""), in.Data)
	method := strings.ToUpper(getString(config, "method", "GET"))
	bodyStr := retrieval.Interpolate(getString(config, "body", ""), in.Data)
	timeoutMs := getInt(config, "timeoutMs", int(defaultHTTPTimeout/time.Millisecond))
	failOnError := getBool(config, "failOnError", true)

	callCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	var bodyReader io.Reader
	if bodyStr != "" {
		bodyReader = bytes.NewBufferString(bodyStr)
	}

	req, err := http.NewRequestWithContext(callCtx, method, url, bodyReader)
	if err != nil {
		return engine.Output{}, fmt.Errorf("http-request node %q: failed to build request: %w", nodeID, err)
	}
	if headers := getMap(config, "headers"); headers != nil {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	host := req.URL.Host
	result, err := breakers.forHost(host).Execute(func() (interface{}, error) {
		resp, err := breakers.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return httpResult{status: resp.StatusCode, statusText: resp.Status, headers: resp.Header, body: string(respBody)}, nil
	})
	if err != nil {
		if failOnError {
			return engine.Output{}, fmt.Errorf("http-request node %q: %w", nodeID, err)
		}
		return engine.Output{Data: map[string]interface{}{"status": 0, "statusText": err.Error(), "headers": map[string]interface{}{}, "body": ""}}, nil
	}

	r := result.(httpResult)
	headers := make(map[string]interface{}, len(r.headers))
	for k, v := range r.headers {
		if len(v) == 1 {
			headers[k] = v[0]
		} else {
			headers[k] = v
		}
	}

	ok := r.status >= 200 && r.status < 300
	data := map[string]interface{}{
		"status":     r.status,
		"statusText": r.statusText,
		"headers":    headers,
		"body":       r.body,
	}
	if !ok && failOnError {
		return engine.Output{Data: data}, fmt.Errorf("http-request node %q: non-2xx response: %s", nodeID, r.statusText)
	}
	return engine.Output{Data: data}, nil
}

type httpResult struct {
	status     int
	statusText string
	headers    http.Header
	body       string
}
