package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Response statuses PAYONE answers with.
const (
	StatusRedirect = "REDIRECT"
	StatusApproved = "APPROVED"
	StatusError    = "ERROR"
	StatusPending  = "PENDING"
)

// Response keys read by the executor.
const (
	KeyStatus          = "status"
	KeyTxID            = "txid"
	KeyRedirectURL     = redirectURLKey
	KeyErrorCode       = "errorcode"
	KeyErrorMessage    = "errormessage"
	KeyCustomerMessage = "customermessage"
)

// Poster sends one synchronous request to the gateway.
type Poster interface {
	Post(ctx context.Context, params map[string]string) (map[string]string, error)
}

// Error is a transport or HTTP level failure. The gateway never saw the
// request or its answer could not be read.
type Error struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway returned HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway request failed: %s", e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(endpoint string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Post sends params form encoded and decodes the key=value answer.
func (c *Client) Post(ctx context.Context, params map[string]string) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(EncodeForm(params)))
	if err != nil {
		return nil, &Error{Message: "failed to build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &Error{StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	c.logger.Debug("gateway call finished",
		zap.String("request", params["request"]),
		zap.Int("http_status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	return ParseFormBody(string(body)), nil
}
