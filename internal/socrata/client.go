// Package socrata is a small client for NYC Open Data (Socrata SODA) datasets.
package socrata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/logger"
)

// ErrSourceUnavailable is returned when a dataset cannot be reached after
// retries, or answers with a server-side error.
var ErrSourceUnavailable = errors.New("source unavailable")

// DefaultPageSize is the $limit used while paginating.
const DefaultPageSize = 1000

// Options configures a Client.
type Options struct {
	BaseURL    string
	AppToken   string
	Timeout    time.Duration
	CallDelay  time.Duration
	MaxRetries int
	RetryWait  time.Duration
	PageSize   int
}

// Client issues paced, retried GET requests against Socrata resources.
// It is safe for concurrent use; the pacing limiter is shared by every caller.
type Client struct {
	http     *resty.Client
	limiter  *rate.Limiter
	log      *logger.Logger
	pageSize int
}

// New creates a Client.
func New(opts Options, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 500 * time.Millisecond
	}

	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.MaxRetries).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(10 * opts.RetryWait).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= http.StatusInternalServerError || r.StatusCode() == http.StatusTooManyRequests
		})
	if opts.AppToken != "" {
		client.SetHeader("X-App-Token", opts.AppToken)
	}

	limit := rate.Inf
	if opts.CallDelay > 0 {
		limit = rate.Every(opts.CallDelay)
	}

	return &Client{
		http:     client,
		limiter:  rate.NewLimiter(limit, 1),
		log:      log,
		pageSize: opts.PageSize,
	}
}

// Query describes one SoQL request. Where holds field equality filters.
type Query struct {
	Where  map[string]string
	Select string
	Group  string
	Order  string
	Limit  int
	Offset int
}

func (q Query) params() map[string]string {
	params := make(map[string]string, len(q.Where)+4)
	for field, value := range q.Where {
		params[field] = value
	}
	if q.Select != "" {
		params["$select"] = q.Select
	}
	if q.Group != "" {
		params["$group"] = q.Group
	}
	if q.Order != "" {
		params["$order"] = q.Order
	}
	if q.Limit > 0 {
		params["$limit"] = strconv.Itoa(q.Limit)
	}
	if q.Offset > 0 {
		params["$offset"] = strconv.Itoa(q.Offset)
	}
	return params
}

// Get runs q against dataset and decodes the JSON array response into out.
func (c *Client) Get(ctx context.Context, dataset string, q Query, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed waiting to query %s: %w", dataset, err)
	}

	started := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(q.params()).
		Get("/resource/" + dataset + ".json")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("failed to query %s: %w", dataset, ctxErr)
		}
		return fmt.Errorf("failed to query %s: %w: %v", dataset, ErrSourceUnavailable, err)
	}

	c.log.Debug("Socrata request completed", logger.Fields{
		"dataset":     dataset,
		"status":      resp.StatusCode(),
		"duration_ms": time.Since(started).Milliseconds(),
	})

	switch {
	case resp.StatusCode() >= http.StatusInternalServerError || resp.StatusCode() == http.StatusTooManyRequests:
		return fmt.Errorf("dataset %s returned %d: %w", dataset, resp.StatusCode(), ErrSourceUnavailable)
	case resp.StatusCode() >= http.StatusBadRequest:
		return fmt.Errorf("dataset %s rejected query with %d: %s", dataset, resp.StatusCode(), truncate(resp.String(), 200))
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", dataset, err)
	}
	return nil
}

// FetchAll pages through every row matching q using $limit/$offset.
// q.Limit caps the total number of rows when positive.
func FetchAll[T any](ctx context.Context, c *Client, dataset string, q Query) ([]T, error) {
	capRows := q.Limit
	page := q
	page.Limit = c.pageSize
	page.Offset = 0

	var all []T
	for {
		if capRows > 0 && capRows-len(all) < page.Limit {
			page.Limit = capRows - len(all)
		}

		var rows []T
		if err := c.Get(ctx, dataset, page, &rows); err != nil {
			return nil, err
		}
		all = append(all, rows...)

		if len(rows) < page.Limit || (capRows > 0 && len(all) >= capRows) {
			return all, nil
		}
		page.Offset += len(rows)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
