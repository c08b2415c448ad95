package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront/internal/session"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4096
)

// Paths はバックエンドのエンドポイント（BaseURLからの相対）。
type Paths struct {
	Cart       string
	Orders     string
	OrderItems string
	Voucher    string
	Payment    string
	Profile    string
}

func DefaultPaths() Paths {
	return Paths{
		Cart:       "carts",
		Orders:     "orders",
		OrderItems: "order-items",
		Voucher:    "orders/voucher",
		Payment:    "payments",
		Profile:    "profile/me",
	}
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	Paths   Paths

	//連続失敗がこの回数を超えたらブレーカーを開く
	BreakerFailures uint32
	//開いてから半開にするまで
	BreakerCooldown time.Duration
}

// Client はストアフロントのバックエンドをHTTP/JSONで呼ぶ。
// リトライはしない。
type Client struct {
	baseURL string
	paths   Paths
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	paths := cfg.Paths
	if paths == (Paths{}) {
		paths = DefaultPaths()
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	st := gobreaker.Settings{
		Name:    "storefront-backend",
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		paths:   paths,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: gobreaker.NewCircuitBreaker[[]byte](st),
		logger:  logger,
	}
}

// バックエンドの共通レスポンス
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Status  int             `json:"status"`
}

// doJSON はリクエストを送り、dataをoutにデコードする（outがnilなら捨てる）。
func (c *Client) doJSON(ctx context.Context, cred session.Credential, method string, path []string, body any, out any) error {
	endpoint, err := url.JoinPath(c.baseURL, path...)
	if err != nil {
		return fmt.Errorf("remote: build url: %w", err)
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("remote: encode body: %w", err)
		}
	}

	data, err := c.breaker.Execute(func() ([]byte, error) {
		return c.send(ctx, cred, method, endpoint, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return err
	}

	if out == nil || len(data) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("remote: decode response: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("remote: decode data: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, cred session.Credential, method, endpoint string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("remote: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !cred.IsZero() {
		req.Header.Set("Authorization", cred.AuthorizationHeader())
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("remote request failed",
			zap.String("method", method),
			zap.String("url", endpoint),
			zap.Error(err),
		)
		return nil, fmt.Errorf("remote: %s %s: %w", method, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("remote: read body: %w", err)
	}

	c.logger.Debug("remote request",
		zap.String("method", method),
		zap.String("url", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

// エラー本文から message を拾う。JSONでなければ先頭だけ返す。
func errorMessage(data []byte) string {
	var env envelope
	if err := json.Unmarshal(data, &env); err == nil {
		if env.Message != "" {
			return env.Message
		}
		if env.Error != "" {
			return env.Error
		}
	}
	if len(data) > maxErrorBody {
		data = data[:maxErrorBody]
	}
	return strings.TrimSpace(string(data))
}
