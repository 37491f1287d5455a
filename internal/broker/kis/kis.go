// Package kis talks to the Korea Investment & Securities Open API over REST.
package kis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"krx-trader/internal/broker"
	"krx-trader/internal/interfaces"
	"krx-trader/internal/logger"
	"krx-trader/internal/types"
)

const (
	LiveURL    = "https://openapi.koreainvestment.com:9443"
	VirtualURL = "https://openapivts.koreainvestment.com:29443"
)

type Config struct {
	AppKey    string
	AppSecret string
	// Account is "CANO-ACNT_PRDT_CD", for example "50000000-01".
	Account string
	Virtual bool
	// BaseURL overrides the live or virtual endpoint.
	BaseURL string
	// RatePerSecond paces requests. KIS allows 20/s live and 2/s virtual.
	RatePerSecond float64
	Timeout       time.Duration
}

// Client implements interfaces.BrokerAPI. Construction performs the OAuth
// token handshake, so it costs one network round trip and fails fast on bad
// credentials. The token is refreshed when it expires.
type Client struct {
	cfg     Config
	account types.Account
	http    *resty.Client
	limiter *rate.Limiter

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

var _ interfaces.BrokerAPI = (*Client)(nil)

func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.AppKey == "" || cfg.AppSecret == "" {
		return nil, errors.New("kis: missing app key/secret")
	}
	account, err := parseAccount(cfg.Account)
	if err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = LiveURL
		if cfg.Virtual {
			cfg.BaseURL = VirtualURL
		}
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 18
		if cfg.Virtual {
			cfg.RatePerSecond = 2
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	hc := resty.New()
	hc.SetBaseURL(cfg.BaseURL)
	hc.SetTimeout(cfg.Timeout)
	hc.SetHeader("Content-Type", "application/json; charset=utf-8")

	c := &Client{
		cfg:     cfg,
		account: account,
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
	}
	if _, err := c.token(ctx); err != nil {
		return nil, err
	}
	logger.Info(ctx, "KIS client ready", "virtual", cfg.Virtual, "account", account.Number)
	return c, nil
}

func parseAccount(s string) (types.Account, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 || len(parts[0]) != 8 || len(parts[1]) != 2 {
		return types.Account{}, fmt.Errorf("kis: account %q must look like 12345678-01", s)
	}
	return types.Account{Number: parts[0], ProductCode: parts[1]}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	ErrorCode   string `json:"error_code"`
	ErrorDesc   string `json:"error_description"`
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Before(c.expiresAt) {
		return c.accessToken, nil
	}

	var out tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"grant_type": "client_credentials",
			"appkey":     c.cfg.AppKey,
			"appsecret":  c.cfg.AppSecret,
		}).
		SetResult(&out).
		SetError(&out).
		Post("/oauth2/tokenP")
	if err != nil {
		return "", broker.NewConnectionError("token", "", err)
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return "", broker.NewConnectionError("token", "", fmt.Errorf("http %d", resp.StatusCode()))
	}
	if resp.IsError() || out.AccessToken == "" {
		return "", fmt.Errorf("kis token: http %d: %s %s", resp.StatusCode(), out.ErrorCode, out.ErrorDesc)
	}

	ttl := time.Duration(out.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	c.accessToken = out.AccessToken
	// refresh a minute early so in-flight requests never carry a stale token
	c.expiresAt = time.Now().Add(ttl - time.Minute)
	return c.accessToken, nil
}

// trID maps a live transaction id to its virtual twin (TTTC... -> VTTC...).
func (c *Client) trID(live string) string {
	if c.cfg.Virtual && strings.HasPrefix(live, "T") {
		return "V" + live[1:]
	}
	return live
}

type envelope struct {
	RtCd  string `json:"rt_cd"`
	MsgCd string `json:"msg_cd"`
	Msg1  string `json:"msg1"`
}

func (e *envelope) head() *envelope { return e }

type response interface {
	head() *envelope
}

type call struct {
	method string
	path   string
	trID   string
	op     string
	symbol string
	query  map[string]string
	body   any
}

func (c *Client) do(ctx context.Context, cl call, out response) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeaders(map[string]string{
			"authorization": "Bearer " + token,
			"appkey":        c.cfg.AppKey,
			"appsecret":     c.cfg.AppSecret,
			"tr_id":         cl.trID,
			"custtype":      "P",
		}).
		SetResult(out).
		SetError(out)
	if cl.query != nil {
		req.SetQueryParams(cl.query)
	}
	if cl.body != nil {
		req.SetBody(cl.body)
	}

	resp, err := req.Execute(cl.method, cl.path)
	if err != nil {
		return broker.NewConnectionError(cl.op, cl.symbol, err)
	}

	h := out.head()
	if h.RtCd == "0" && !resp.IsError() {
		return nil
	}
	if h.RtCd == "" {
		if resp.StatusCode() >= http.StatusInternalServerError || resp.StatusCode() == http.StatusTooManyRequests {
			return broker.NewConnectionError(cl.op, cl.symbol, fmt.Errorf("http %d", resp.StatusCode()))
		}
		return fmt.Errorf("kis %s: http %d: %s", cl.op, resp.StatusCode(), resp.String())
	}
	return classify(cl.op, cl.symbol, h)
}

var (
	notFoundMarkers = []string{"없는 종목", "존재하지 않는", "조회할 자료가 없습니다", "해당 주문이 없습니다"}
	closedMarkers   = []string{"장종료", "장운영시간", "장시작전", "장 마감", "주문가능시간"}
)

// classify turns a KIS error envelope into the broker error taxonomy.
func classify(op, symbol string, h *envelope) error {
	switch {
	case h.MsgCd == "EGW00201": // per-second request quota exceeded
		return broker.NewConnectionError(op, symbol, fmt.Errorf("%s %s", h.MsgCd, h.Msg1))
	case containsAny(h.Msg1, closedMarkers):
		return fmt.Errorf("%w: %s", broker.ErrMarketClosed, h.Msg1)
	case containsAny(h.Msg1, notFoundMarkers):
		return fmt.Errorf("%w: %s %s", broker.ErrNotFound, symbol, h.Msg1)
	}
	return fmt.Errorf("kis %s %s: %s %s", op, symbol, h.MsgCd, h.Msg1)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func (c *Client) Account(ctx context.Context) (types.Account, error) {
	return c.account, nil
}
