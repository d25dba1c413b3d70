package gge

import (
	"context"
	"strconv"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/gge-tracker/gge-tracker-sub001/internal/platform/logging"
	"github.com/gge-tracker/gge-tracker-sub001/internal/platform/resilience"
	"github.com/valyala/fasthttp"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "gge-tracker-scraper/1.0"
	maxBodyLogBytes  = 256
)

type Command string

const (
	CommandRanking      Command = "hgh"
	CommandPlayerDetail Command = "gdi"
)

type Status int

const (
	StatusOK Status = iota
	StatusNoActiveEvent
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoActiveEvent:
		return "no_active_event"
	default:
		return "failure"
	}
}

type FailureKind string

const (
	FailureNone        FailureKind = ""
	FailureTransport   FailureKind = "transport"
	FailureStatus      FailureKind = "status"
	FailureMalformed   FailureKind = "malformed"
	FailureReturnCode  FailureKind = "return_code"
	FailureCircuitOpen FailureKind = "circuit_open"
)

// countsTowardBreaker reports failures that say the server itself is sick.
// A non-zero return code is a well-formed answer and does not count.
func (k FailureKind) countsTowardBreaker() bool {
	switch k {
	case FailureTransport, FailureStatus, FailureMalformed:
		return true
	default:
		return false
	}
}

// Result is the tri-state outcome of one request. Payload is only meaningful
// when Status is StatusOK.
type Result[T any] struct {
	Status  Status
	Payload T
	Failure FailureKind
	Err     error
}

func (r Result[T]) OK() bool {
	return r.Status == StatusOK
}

func (r Result[T]) NoActiveEvent() bool {
	return r.Status == StatusNoActiveEvent
}

// Retryable is true for every failure; callers own the retry budget.
func (r Result[T]) Retryable() bool {
	return r.Status == StatusFailure
}

// Outcome is the label used for request metrics.
func (r Result[T]) Outcome() string {
	if r.Status == StatusFailure {
		return string(r.Failure)
	}
	return r.Status.String()
}

func failed[T any](kind FailureKind, err error) Result[T] {
	return Result[T]{Status: StatusFailure, Failure: kind, Err: err}
}

// Transport is satisfied by *fasthttp.Client.
type Transport interface {
	DoTimeout(req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration) error
	DoDeadline(req *fasthttp.Request, resp *fasthttp.Response, deadline time.Time) error
}

// Observer is called once per request with its outcome label.
type Observer func(cmd Command, outcome string)

type ClientConfig struct {
	Transport      Transport
	BaseURL        string
	ServerHeader   string
	Timeout        time.Duration
	UserAgent      string
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
	Observer       Observer
}

type Client struct {
	transport      Transport
	baseURL        string
	serverHeader   string
	timeout        time.Duration
	userAgent      string
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
	observer       Observer
}

func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, crerr.New("gge base url is required")
	}
	header := strings.Trim(strings.TrimSpace(cfg.ServerHeader), "/")
	if header == "" {
		return nil, crerr.New("gge server header is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	transport := cfg.Transport
	if transport == nil {
		transport = &fasthttp.Client{
			Name:                          defaultUserAgent,
			MaxConnsPerHost:               8,
			ReadTimeout:                   defaultTimeout,
			WriteTimeout:                  defaultTimeout,
			MaxIdleConnDuration:           30 * time.Second,
			NoDefaultUserAgentHeader:      true,
			DisableHeaderNamesNormalizing: true,
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)
	breaker := resilience.NewCircuitBreaker(breakerCfg)
	clientLogger := logger.Named("gge.client").With("server_header", header)
	breaker.OnTransition(func(from, to resilience.CircuitState) {
		clientLogger.Warn("gge circuit breaker state changed", "from", from, "to", to)
	})

	return &Client{
		transport:      transport,
		baseURL:        baseURL,
		serverHeader:   header,
		timeout:        timeout,
		userAgent:      userAgent,
		logger:         clientLogger,
		breaker:        breaker,
		circuitEnabled: breakerCfg.Enabled,
		observer:       cfg.Observer,
	}, nil
}

func (c *Client) BreakerState() resilience.CircuitState {
	return c.breaker.State()
}

// URL renders the request target for a command.
func (c *Client) URL(cmd Command, params Params) (string, error) {
	encoded, err := EncodeParams(params)
	if err != nil {
		return "", err
	}
	return c.baseURL + "/" + c.serverHeader + "/" + string(cmd) + "/" + encoded, nil
}

// Query issues one GET and classifies the envelope. There is no retry here.
func (c *Client) Query(ctx context.Context, cmd Command, params Params) Result[Envelope] {
	res := c.query(ctx, cmd, params)
	if c.observer != nil {
		c.observer(cmd, res.Outcome())
	}
	return res
}

func (c *Client) query(ctx context.Context, cmd Command, params Params) Result[Envelope] {
	if err := ctx.Err(); err != nil {
		return failed[Envelope](FailureTransport, err)
	}
	target, err := c.URL(cmd, params)
	if err != nil {
		return failed[Envelope](FailureMalformed, crerr.Wrapf(err, "encode %s params", cmd))
	}

	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			return failed[Envelope](FailureCircuitOpen, crerr.Wrapf(err, "%s rejected", cmd))
		}
	}

	status, body, err := c.do(ctx, target)
	res := classify(cmd, status, body, err)
	if c.circuitEnabled {
		c.breaker.Record(res.Failure.countsTowardBreaker())
	}
	if res.Status == StatusFailure {
		c.logger.DebugContext(ctx, "gge request failed",
			"command", string(cmd),
			"failure", string(res.Failure),
			"http_status", status,
			"error", res.Err,
		)
	}
	return res
}

func (c *Client) do(ctx context.Context, target string) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(target)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	req.Header.SetUserAgent(c.userAgent)

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		if limit := time.Now().Add(c.timeout); limit.Before(deadline) {
			deadline = limit
		}
		err = c.transport.DoDeadline(req, resp, deadline)
	} else {
		err = c.transport.DoTimeout(req, resp, c.timeout)
	}
	if err != nil {
		return 0, nil, err
	}

	body, err := resp.BodyUncompressed()
	if err != nil {
		return resp.StatusCode(), nil, crerr.Wrap(err, "decompress body")
	}
	return resp.StatusCode(), append([]byte(nil), body...), nil
}

func classify(cmd Command, status int, body []byte, err error) Result[Envelope] {
	if err != nil {
		if status != 0 {
			return failed[Envelope](FailureMalformed, crerr.Wrapf(err, "%s read body", cmd))
		}
		return failed[Envelope](FailureTransport, crerr.Wrapf(err, "%s send request", cmd))
	}
	if status < 200 || status >= 300 {
		return failed[Envelope](FailureStatus, crerr.Newf("%s status=%d body=%s", cmd, status, abbreviateBody(body)))
	}

	env, err := DecodeEnvelope(body)
	if err != nil {
		return failed[Envelope](FailureMalformed, crerr.Wrapf(err, "%s decode envelope", cmd))
	}
	if !env.OK() {
		return failed[Envelope](FailureReturnCode, crerr.Newf("%s return_code=%s", cmd, env.ReturnCode))
	}
	if env.EmptyContent() {
		return Result[Envelope]{Status: StatusNoActiveEvent, Payload: env}
	}
	return Result[Envelope]{Status: StatusOK, Payload: env}
}

// decodeAs narrows an envelope result into a typed payload. decode reports
// empty=true when the content is well formed but carries nothing.
func decodeAs[T any](cmd Command, res Result[Envelope], decode func([]byte) (T, bool, error)) Result[T] {
	switch res.Status {
	case StatusFailure:
		return Result[T]{Status: StatusFailure, Failure: res.Failure, Err: res.Err}
	case StatusNoActiveEvent:
		return Result[T]{Status: StatusNoActiveEvent}
	}
	payload, empty, err := decode(res.Payload.Content)
	if err != nil {
		return failed[T](FailureMalformed, crerr.Wrapf(err, "%s decode content", cmd))
	}
	if empty {
		return Result[T]{Status: StatusNoActiveEvent, Payload: payload}
	}
	return Result[T]{Status: StatusOK, Payload: payload}
}

type RankingQuery struct {
	ListType    int
	LeagueID    int
	SearchValue int64
}

func (q RankingQuery) params() Params {
	return Params{}.
		With("LT", q.ListType).
		With("LID", q.LeagueID).
		With("SV", strconv.FormatInt(q.SearchValue, 10))
}

// Ranking fetches one page of a ranked list. An empty L list is reported as
// StatusNoActiveEvent.
func (c *Client) Ranking(ctx context.Context, q RankingQuery) Result[RankingPage] {
	return decodeAs(CommandRanking, c.Query(ctx, CommandRanking, q.params()), decodeRanking)
}

// PlayerDetail resolves one player. StatusNoActiveEvent means the remote no
// longer knows the id.
func (c *Client) PlayerDetail(ctx context.Context, playerID int64) Result[PlayerInfo] {
	params := Params{}.With("PID", playerID)
	return decodeAs(CommandPlayerDetail, c.Query(ctx, CommandPlayerDetail, params), decodeDetail)
}

func abbreviateBody(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	if len(text) <= maxBodyLogBytes {
		return text
	}
	return text[:maxBodyLogBytes] + "..."
}
