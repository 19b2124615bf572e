// Package rankctl implements the reputation command line client.
package rankctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/reputation/internal/domain/types"
)

// ErrServer is wrapped by every non-2xx response.
var ErrServer = errors.New("server error")

// APIError is the decoded error body of a failed request.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return ErrServer }

// SubmitRequest is the body of POST /evaluations.
type SubmitRequest struct {
	RaterID       string   `json:"rater_id,omitempty"`
	RatedID       string   `json:"rated_id"`
	TransactionID string   `json:"transaction_id"`
	Positive      []string `json:"positive_aspects,omitempty"`
	Negative      []string `json:"negative_aspects,omitempty"`
	Comment       string   `json:"comment,omitempty"`
}

// SubmitResult is the body of a successful submission.
type SubmitResult struct {
	Status       string `json:"status"`
	EvaluationID string `json:"evaluation_id"`
	Duplicate    bool   `json:"duplicate"`
}

// Client talks to a reputation server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Catalog fetches the selectable aspects.
func (c *Client) Catalog(ctx context.Context) (types.CatalogView, error) {
	var out types.CatalogView
	return out, c.do(ctx, http.MethodGet, "/catalog", nil, &out)
}

// Submit posts one evaluation.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	var out SubmitResult
	return out, c.do(ctx, http.MethodPost, "/evaluations", req, &out)
}

// Statistics fetches every observed aspect of partyID.
func (c *Client) Statistics(ctx context.Context, partyID string) (types.Statistics, error) {
	var out types.Statistics
	return out, c.do(ctx, http.MethodGet, partyPath(partyID, "statistics"), nil, &out)
}

// Summary fetches the top aspects of partyID.
func (c *Client) Summary(ctx context.Context, partyID string) (types.Summary, error) {
	var out types.Summary
	return out, c.do(ctx, http.MethodGet, partyPath(partyID, "summary"), nil, &out)
}

// Ranking fetches the public view of partyID.
func (c *Client) Ranking(ctx context.Context, partyID string) (types.RankingView, error) {
	var out types.RankingView
	return out, c.do(ctx, http.MethodGet, partyPath(partyID, "ranking"), nil, &out)
}

// Leaderboard fetches the limit best parties.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]types.LeaderboardEntry, error) {
	var out []types.LeaderboardEntry
	return out, c.do(ctx, http.MethodGet, "/leaderboard?limit="+strconv.Itoa(limit), nil, &out)
}

func partyPath(partyID, view string) string {
	return "/parties/" + url.PathEscape(partyID) + "/" + view
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Code == "" {
			apiErr.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_"))
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
