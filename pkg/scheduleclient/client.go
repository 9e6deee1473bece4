// Package scheduleclient is a thin HTTP client over the schedule service's
// wire surface. It owns no retry or episode logic; that belongs to the RL
// client driving it.
package scheduleclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jqzhao7/SUPERSONIC/pkg/scheduleapi"
)

// ErrBatchLengthMismatch reports a reset reply whose result list does not
// match the request list. The service guarantees one result per operation;
// a mismatch means the reply cannot be trusted.
var ErrBatchLengthMismatch = errors.New("reset response length mismatch")

// APIError is a non-2xx reply from the service, carrying the taxonomy code
// ("phase_violation", "invalid_operation", "session_dead", ...).
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("schedule service: %s (%s, status %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("schedule service: %s (status %d)", e.Message, e.Status)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) Init(ctx context.Context, req scheduleapi.InitRequest) (scheduleapi.InitResponse, error) {
	var resp scheduleapi.InitResponse
	err := c.do(ctx, http.MethodPost, "/v1/sessions", req, &resp)
	return resp, err
}

func (c *Client) Step(ctx context.Context, sessionID string, mapCode int32) (scheduleapi.StepResponse, error) {
	var resp scheduleapi.StepResponse
	err := c.do(ctx, http.MethodPost, "/v1/sessions/"+sessionID+"/step",
		scheduleapi.StepRequest{Op: scheduleapi.Operation{MapCode: mapCode}}, &resp)
	return resp, err
}

func (c *Client) Reset(ctx context.Context, sessionID string, mapCodes []int32) (scheduleapi.ResetResponse, error) {
	req := scheduleapi.ResetRequest{Op: make([]scheduleapi.Operation, len(mapCodes))}
	for i, code := range mapCodes {
		req.Op[i] = scheduleapi.Operation{MapCode: code}
	}
	var resp scheduleapi.ResetResponse
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/"+sessionID+"/reset", req, &resp); err != nil {
		return resp, err
	}
	if len(resp.Op) != len(mapCodes) {
		return resp, fmt.Errorf("%w: sent %d ops, got %d results", ErrBatchLengthMismatch, len(mapCodes), len(resp.Op))
	}
	return resp, nil
}

func (c *Client) Render(ctx context.Context, sessionID string) (scheduleapi.RenderResponse, error) {
	var resp scheduleapi.RenderResponse
	err := c.do(ctx, http.MethodGet, "/v1/sessions/"+sessionID+"/render", nil, &resp)
	return resp, err
}

func (c *Client) Close(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/sessions/"+sessionID, nil, nil)
}

func (c *Client) TvmStep(ctx context.Context, action int32) (scheduleapi.TvmStepResponse, error) {
	var resp scheduleapi.TvmStepResponse
	err := c.do(ctx, http.MethodPost, "/v1/tvm/step", scheduleapi.TvmStepRequest{Action: action}, &resp)
	return resp, err
}

func (c *Client) StokeMessage(ctx context.Context, code string, cost float64) (scheduleapi.StokeMessageResponse, error) {
	var resp scheduleapi.StokeMessageResponse
	err := c.do(ctx, http.MethodPost, "/v1/stoke/message", scheduleapi.StokeMessageRequest{Code: code, Cost: cost}, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr scheduleapi.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr != nil {
			return &APIError{Status: resp.StatusCode, Message: resp.Status}
		}
		return &APIError{Status: resp.StatusCode, Code: apiErr.Code, Message: apiErr.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
