// Package client holds thin HTTP clients for the downstream services. Each
// call forwards the caller's bearer token so downstream auth stays end to end.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ActivityClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewActivityClient(baseURL string) *ActivityClient {
	return &ActivityClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type Progress struct {
	LessonID        uuid.UUID `json:"lesson_id"`
	LastWatchTime   int       `json:"last_watch_time"`
	MaxWatchTime    int       `json:"max_watch_time"`
	DurationSeconds int       `json:"duration_seconds"`
	Completed       bool      `json:"completed"`
}

type SaveWatchTimeRequest struct {
	LessonID        uuid.UUID `json:"lesson_id"`
	LastWatchTime   int       `json:"last_watch_time"`
	MaxWatchTime    int       `json:"max_watch_time"`
	DurationSeconds int       `json:"duration_seconds"`
	ClientTsMs      int64     `json:"client_ts_ms"`
}

// GetProgress returns ok=false when the lesson has never been watched.
func (c *ActivityClient) GetProgress(ctx context.Context, token string, lessonID uuid.UUID) (Progress, bool, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/v1/progress/"+lessonID.String(), token, nil)
	if err != nil {
		return Progress{}, false, err
	}
	if status == http.StatusNotFound {
		return Progress{}, false, nil
	}
	if status != http.StatusOK {
		return Progress{}, false, statusError("activity", status, body)
	}
	var out Progress
	if err := json.Unmarshal(body, &out); err != nil {
		return Progress{}, false, fmt.Errorf("activity: decode error: %w", err)
	}
	return out, true, nil
}

func (c *ActivityClient) SaveWatchTime(ctx context.Context, token string, req SaveWatchTimeRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	body, status, err := c.do(ctx, http.MethodPost, "/v1/progress/watch-time", token, payload)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return statusError("activity", status, body)
	}
	return nil
}

// ListProgress returns the continue-learning feed verbatim; the BFF does not
// reshape it.
func (c *ActivityClient) ListProgress(ctx context.Context, token, rawQuery string) (json.RawMessage, error) {
	path := "/v1/progress"
	if rawQuery != "" {
		path += "?" + rawQuery
	}
	body, status, err := c.do(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError("activity", status, body)
	}
	return body, nil
}

func (c *ActivityClient) do(ctx context.Context, method, path, token string, payload []byte) ([]byte, int, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, 0, err
	}
	return b, resp.StatusCode, nil
}

func statusError(service string, status int, body []byte) error {
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Errorf("%s: status %d body=%q", service, status, string(body))
}
