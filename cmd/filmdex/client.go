package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/filmdex/internal/models"
)

// apiClient talks to a running filmdex server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// filterValues encodes f as GET /movie query parameters.
func filterValues(f *models.Filter) url.Values {
	v := url.Values{}
	if f.Page > 0 {
		v.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		v.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.ReleaseYear != nil {
		v.Set("release_year", strconv.Itoa(*f.ReleaseYear))
	}
	if f.Rating != nil {
		v.Set("rating", strconv.Itoa(*f.Rating))
	}
	if f.Director != nil {
		v.Set("director", *f.Director)
	}
	if f.Search != nil {
		v.Set("search", *f.Search)
	}
	return v
}

func (c *apiClient) search(f *models.Filter) (*models.PaginatedResult, error) {
	target := c.baseURL + "/movie"
	if q := filterValues(f).Encode(); q != "" {
		target += "?" + q
	}
	var result models.PaginatedResult
	if err := c.get(target, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *apiClient) movie(id string) (*models.Movie, error) {
	var env apiEnvelope
	if err := c.get(c.baseURL+"/movie/"+url.PathEscape(id), &env); err != nil {
		return nil, err
	}
	var m models.Movie
	if err := json.Unmarshal(env.Data, &m); err != nil {
		return nil, fmt.Errorf("decode movie: %w", err)
	}
	return &m, nil
}

func (c *apiClient) directors() ([]string, error) {
	var env apiEnvelope
	if err := c.get(c.baseURL+"/directors", &env); err != nil {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return nil, fmt.Errorf("decode directors: %w", err)
	}
	return out, nil
}

func (c *apiClient) get(target string, v interface{}) error {
	resp, err := c.http.Get(target)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		var env apiEnvelope
		if json.Unmarshal(b, &env) == nil && env.Message != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, env.Message)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
