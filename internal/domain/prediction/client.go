package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxErrorBody = 1024

// UpstreamError is returned when the prediction bridge answers with a non-2xx
// status or an {"error": ...} payload.
type UpstreamError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: upstream returned %d: %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}

// Client talks to the prediction bridge over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	defaults   Request
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for upstream calls.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithDefaults sets the model, method, threshold and ICD version used when a
// request leaves them empty.
func WithDefaults(d Request) ClientOption {
	return func(cl *Client) { cl.defaults = d }
}

func NewClient(baseURL string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		defaults:   Request{ExplainMethod: "grad_attention", ConfidenceThreshold: 0.5, ICDVersion: "10"},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type localBody struct {
	Note                string  `json:"note"`
	ExplainMethod       string  `json:"explain_method"`
	Model               string  `json:"model,omitempty"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

type llmBody struct {
	Note       string `json:"note"`
	Model      string `json:"model,omitempty"`
	ICDVersion string `json:"icd_version"`
}

// Predict calls the backend selected by req and returns the raw response.
// Empty request fields are filled from the client defaults.
func (c *Client) Predict(ctx context.Context, req Request) (*Response, Request, error) {
	req = c.withDefaults(req)

	var (
		path string
		body any
	)
	switch req.Backend {
	case SourceLocal:
		path = "/predict-explain"
		body = localBody{Note: req.Note, ExplainMethod: req.ExplainMethod, Model: req.Model, ConfidenceThreshold: req.ConfidenceThreshold}
	case SourceLLM:
		path = "/predict-llm"
		body = llmBody{Note: req.Note, Model: req.Model, ICDVersion: req.ICDVersion}
	default:
		return nil, req, fmt.Errorf("unknown prediction backend %q", req.Backend)
	}

	var resp Response
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, req, err
	}
	if msg := strings.TrimSpace(resp.Error); msg != "" {
		return nil, req, &UpstreamError{Operation: "predict", Message: msg}
	}
	return &resp, req, nil
}

// Models lists the local model directories the bridge knows about.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	var out ModelList
	if err := c.do(ctx, http.MethodGet, "/models", nil, &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// ExplainMethods lists the attribution methods the local backend supports.
func (c *Client) ExplainMethods(ctx context.Context) ([]string, error) {
	var out MethodList
	if err := c.do(ctx, http.MethodGet, "/explain-methods", nil, &out); err != nil {
		return nil, err
	}
	return out.Methods, nil
}

func (c *Client) withDefaults(req Request) Request {
	if req.Backend == "" {
		req.Backend = SourceLocal
	}
	if req.Model == "" && req.Backend == SourceLLM {
		req.Model = c.defaults.Model
	}
	if req.ExplainMethod == "" {
		req.ExplainMethod = c.defaults.ExplainMethod
	}
	if req.ConfidenceThreshold <= 0 {
		req.ConfidenceThreshold = c.defaults.ConfidenceThreshold
	}
	if req.ICDVersion == "" {
		req.ICDVersion = c.defaults.ICDVersion
	}
	return req
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UpstreamError{Operation: strings.TrimPrefix(path, "/"), StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
