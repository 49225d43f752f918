package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

type CatalogClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewCatalogClient(baseURL string) *CatalogClient {
	return &CatalogClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type Course struct {
	ID           uuid.UUID `json:"id"`
	InstructorID uuid.UUID `json:"instructor_id"`
	CategoryID   uuid.UUID `json:"category_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Status       string    `json:"status"`
	LevelName    string    `json:"level_name"`
	OrderIndex   int       `json:"order_index"`
}

type Bundle struct {
	ID              uuid.UUID `json:"id"`
	InstructorID    uuid.UUID `json:"instructor_id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	Type            string    `json:"type"`
	DiscountPercent int       `json:"discount_percent"`
}

type BundleCourse struct {
	OrderIndex int    `json:"order_index"`
	Course     Course `json:"course"`
}

type BundleMeta struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Type            string `json:"type"`
	DiscountPercent int    `json:"discount_percent"`
}

type CourseFilter struct {
	InstructorID uuid.UUID
	CategoryID   uuid.UUID
	Status       string
}

func (c *CatalogClient) ListCourses(ctx context.Context, token string, f CourseFilter) ([]Course, error) {
	q := url.Values{}
	if f.InstructorID != uuid.Nil {
		q.Set("instructor_id", f.InstructorID.String())
	}
	if f.CategoryID != uuid.Nil {
		q.Set("category_id", f.CategoryID.String())
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	path := "/v1/courses"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	body, status, err := c.do(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError("catalog", status, body)
	}
	var out struct {
		Courses []Course `json:"courses"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("catalog: decode error: %w", err)
	}
	return out.Courses, nil
}

func (c *CatalogClient) GetBundle(ctx context.Context, token string, id uuid.UUID) (Bundle, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/v1/bundles/"+id.String(), token, nil)
	if err != nil {
		return Bundle{}, err
	}
	if status != http.StatusOK {
		return Bundle{}, statusError("catalog", status, body)
	}
	var out Bundle
	if err := json.Unmarshal(body, &out); err != nil {
		return Bundle{}, fmt.Errorf("catalog: decode error: %w", err)
	}
	return out, nil
}

func (c *CatalogClient) ListBundleCourses(ctx context.Context, token string, id uuid.UUID) ([]BundleCourse, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/v1/bundles/"+id.String()+"/courses", token, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError("catalog", status, body)
	}
	var out struct {
		Courses []BundleCourse `json:"courses"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("catalog: decode error: %w", err)
	}
	return out.Courses, nil
}

func (c *CatalogClient) CreateBundle(ctx context.Context, token string, meta BundleMeta) (Bundle, error) {
	payload, _ := json.Marshal(meta)
	body, status, err := c.do(ctx, http.MethodPost, "/v1/bundles", token, payload)
	if err != nil {
		return Bundle{}, err
	}
	if status != http.StatusCreated {
		return Bundle{}, statusError("catalog", status, body)
	}
	var out Bundle
	if err := json.Unmarshal(body, &out); err != nil {
		return Bundle{}, fmt.Errorf("catalog: decode error: %w", err)
	}
	return out, nil
}

func (c *CatalogClient) UpdateBundle(ctx context.Context, token string, id uuid.UUID, meta BundleMeta) (Bundle, error) {
	payload, _ := json.Marshal(meta)
	body, status, err := c.do(ctx, http.MethodPut, "/v1/bundles/"+id.String(), token, payload)
	if err != nil {
		return Bundle{}, err
	}
	if status != http.StatusOK {
		return Bundle{}, statusError("catalog", status, body)
	}
	var out Bundle
	if err := json.Unmarshal(body, &out); err != nil {
		return Bundle{}, fmt.Errorf("catalog: decode error: %w", err)
	}
	return out, nil
}

func (c *CatalogClient) AddBundleCourse(ctx context.Context, token string, bundleID, courseID uuid.UUID, orderIndex int) error {
	payload, _ := json.Marshal(map[string]any{"course_id": courseID, "order_index": orderIndex})
	body, status, err := c.do(ctx, http.MethodPost, "/v1/bundles/"+bundleID.String()+"/courses", token, payload)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return statusError("catalog", status, body)
	}
	return nil
}

func (c *CatalogClient) RemoveBundleCourse(ctx context.Context, token string, bundleID, courseID uuid.UUID) error {
	body, status, err := c.do(ctx, http.MethodDelete, "/v1/bundles/"+bundleID.String()+"/courses/"+courseID.String(), token, nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return statusError("catalog", status, body)
	}
	return nil
}

type CourseOrder struct {
	CourseID   uuid.UUID `json:"course_id"`
	OrderIndex int       `json:"order_index"`
}

func (c *CatalogClient) ReorderBundleCourses(ctx context.Context, token string, bundleID uuid.UUID, order []CourseOrder) error {
	payload, _ := json.Marshal(map[string]any{"courses": order})
	body, status, err := c.do(ctx, http.MethodPut, "/v1/bundles/"+bundleID.String()+"/courses/order", token, payload)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return statusError("catalog", status, body)
	}
	return nil
}

func (c *CatalogClient) do(ctx context.Context, method, path, token string, payload []byte) ([]byte, int, error) {
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
