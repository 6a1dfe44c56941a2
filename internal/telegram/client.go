// Package telegram is the outbound gateway to the Telegram Bot API.
//
// Every call is a JSON POST to /bot<token>/<method>. Calls are retried with
// cenkalti/backoff: a 429 waits the provider's retry_after (body parameter or
// Retry-After header) and falls back to exponential backoff when none is
// given; transport failures, timeouts and 5xx replies are retried the same
// way; any other failure is returned at once. Each attempt is bounded by its
// own timeout and the number of attempts is capped.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// Options configures a Client. Zero values take the defaults noted below.
type Options struct {
	BaseURL        string        // DefaultBaseURL
	Token          string        // required
	Timeout        time.Duration // per attempt, 5s
	MaxAttempts    int           // 3
	InitialBackoff time.Duration // first exponential delay, 1s
	MaxRetryAfter  time.Duration // longer provider delays are not waited for, 60s
}

// Client is safe for concurrent use.
type Client struct {
	http           *resty.Client
	timeout        time.Duration
	maxAttempts    uint
	initialBackoff time.Duration
	maxRetryAfter  time.Duration
}

// New validates opts and builds a Client.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, ErrMissingToken
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.MaxRetryAfter <= 0 {
		opts.MaxRetryAfter = time.Minute
	}

	hc := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")+"/bot"+opts.Token).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		http:           hc,
		timeout:        opts.Timeout,
		maxAttempts:    uint(opts.MaxAttempts),
		initialBackoff: opts.InitialBackoff,
		maxRetryAfter:  opts.MaxRetryAfter,
	}, nil
}

// call runs method with retries and decodes the result into out (may be nil).
func (c *Client) call(ctx context.Context, method string, body, out any) error {
	ctx, span := otel.Tracer("telegram").Start(ctx, method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("telegram.method", method)),
	)
	defer span.End()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.initialBackoff
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxInterval = 30 * time.Second

	log := zerolog.Ctx(ctx)
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.attempt(ctx, method, body, out)
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(c.maxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			retriesTotal.WithLabelValues(method).Inc()
			log.Warn().Err(err).Str("method", method).Dur("wait", wait).Msg("telegram call retry")
		}),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, method string, body, out any) error {
	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.http.R().SetContext(actx).SetBody(body).Post("/" + method)
	if err != nil {
		requestsTotal.WithLabelValues(method, "error").Inc()
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		// Strip the URL (it embeds the token) from transport errors.
		return fmt.Errorf("telegram %s: %w", method, unwrapURLError(err))
	}
	status := resp.StatusCode()
	requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()

	var env envelope[json.RawMessage]
	if jerr := json.Unmarshal(resp.Body(), &env); jerr != nil {
		e := &APIError{Method: method, Code: status, Description: "undecodable reply: " + http.StatusText(status)}
		if status >= 500 {
			return e
		}
		return backoff.Permanent(e)
	}
	if env.OK {
		if out != nil && len(env.Result) > 0 {
			if err := json.Unmarshal(env.Result, out); err != nil {
				return backoff.Permanent(fmt.Errorf("telegram %s: decode result: %w", method, err))
			}
		}
		return nil
	}

	apiErr := &APIError{Method: method, Code: env.ErrorCode, Description: env.Description}
	if apiErr.Code == 0 {
		apiErr.Code = status
	}
	switch {
	case apiErr.IsTooManyRequests():
		secs := 0
		if env.Parameters != nil {
			secs = env.Parameters.RetryAfter
		}
		if secs <= 0 {
			secs, _ = strconv.Atoi(strings.TrimSpace(resp.Header().Get("Retry-After")))
		}
		apiErr.RetryAfter = secs
		if secs <= 0 {
			return apiErr
		}
		if time.Duration(secs)*time.Second > c.maxRetryAfter {
			return backoff.Permanent(apiErr)
		}
		return fmt.Errorf("%w (%w)", apiErr, backoff.RetryAfter(secs))
	case apiErr.Code >= 500:
		return apiErr
	default:
		return backoff.Permanent(apiErr)
	}
}

func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err
	}
	return err
}
