package scheduler

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

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrUnavailable = errors.New("scheduler unavailable")
	ErrBadResponse = errors.New("scheduler returned an unreadable response")
)

const maxBodyBytes = 1 << 20

// Client talks to the remote scheduler. Every call is bounded by the
// http.Client timeout so a hung request resolves to an error.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, rps float64, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}
}

// QueryWindow fetches valid start times. On any failure it returns an empty
// window together with the error.
func (c *Client) QueryWindow(ctx context.Context, q WindowQuery) (Window, error) {
	params := url.Values{}
	params.Set("date", q.Date)
	params.Set("service_ids", strings.Join(q.ServiceIDs, ","))

	var w Window
	if err := c.get(ctx, c.businessPath(q.BusinessID, "slots"), params, &w); err != nil {
		return Window{}, fmt.Errorf("query window: %w", err)
	}
	if w.AvailableStartTimes == nil {
		w.AvailableStartTimes = []int{}
	}
	return w, nil
}

// QueryAssignments fetches the per-service staff candidates for one start
// time. On any failure it returns no slots together with the error.
func (c *Client) QueryAssignments(ctx context.Context, q AssignmentQuery) ([]ServiceSlot, error) {
	params := url.Values{}
	params.Set("date", q.Date)
	params.Set("service_ids", strings.Join(q.ServiceIDs, ","))
	params.Set("start_time", strconv.Itoa(q.StartTime))
	if q.CustomerPhone != "" {
		params.Set("customer_phone", q.CustomerPhone)
	}

	var resp assignmentsResponse
	if err := c.get(ctx, c.businessPath(q.BusinessID, "slots/employees"), params, &resp); err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	return resp.Services, nil
}

// Submit creates the booking. Business rejections come back as a response
// with Success=false and an ErrorCode; the error is reserved for transport
// and decoding failures.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return SubmitResponse{}, fmt.Errorf("marshal booking: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return SubmitResponse{}, fmt.Errorf("submit booking: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.businessPath(req.BusinessID, "bookings"), bytes.NewReader(body))
	if err != nil {
		return SubmitResponse{}, fmt.Errorf("build booking request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if req.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.AuthToken)
	}

	status, raw, err := c.do(httpReq)
	if err != nil {
		return SubmitResponse{}, fmt.Errorf("submit booking: %w", err)
	}

	var out SubmitResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if status >= http.StatusInternalServerError {
			return SubmitResponse{}, fmt.Errorf("submit booking: %w: status %d", ErrUnavailable, status)
		}
		return SubmitResponse{}, fmt.Errorf("submit booking: %w", ErrBadResponse)
	}
	if status >= http.StatusBadRequest {
		out.Success = false
		if out.ErrorCode == "" && status >= http.StatusInternalServerError {
			return SubmitResponse{}, fmt.Errorf("submit booking: %w: status %d", ErrUnavailable, status)
		}
	}
	return out, nil
}

func (c *Client) businessPath(businessID, suffix string) string {
	return fmt.Sprintf("%s/public/businesses/%s/%s", c.baseURL, url.PathEscape(businessID), suffix)
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	status, raw, err := c.do(req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, status)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("scheduler request failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Error(err))
		return 0, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	c.logger.Debug("scheduler request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	return resp.StatusCode, raw, nil
}
