// Package middleware contains the Gin middleware used in front of the webhook
// and the ops endpoints.
//
// This file implements RedactingLogger, the access logger. It never logs
// bodies, and it scrubs the two secrets the relay handles from everything it
// does log: bot tokens (which may appear in paths when the webhook is mounted
// under the token, or in upstream query strings) and the webhook secret
// header.
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// HeaderWebhookSecret carries the secret configured with setWebhook.
const HeaderWebhookSecret = "X-Telegram-Bot-Api-Secret-Token"

// botTokenRE matches "<bot id>:<35 char secret>" bot tokens.
var botTokenRE = regexp.MustCompile(`\d{5,}:[A-Za-z0-9_-]{30,}`)

// RedactOptions configures additional scrub behavior for RedactingLogger.
//
// MaskHeaders names extra headers whose values are replaced with
// "[REDACTED]", merged with the built-in set (Authorization, Cookie,
// Set-Cookie and the webhook secret header). Secrets are literal values
// that are scrubbed wherever they appear.
type RedactOptions struct {
	MaskHeaders []string
	Secrets     []string
}

func (o RedactOptions) redactor() func(string) string {
	var pairs []string
	for _, s := range o.Secrets {
		if s = strings.TrimSpace(s); s != "" {
			pairs = append(pairs, s, "[REDACTED]")
		}
	}
	literal := strings.NewReplacer(pairs...)
	return func(s string) string {
		if s == "" {
			return s
		}
		return botTokenRE.ReplaceAllString(literal.Replace(s), "[REDACTED:token]")
	}
}

// RedactingLogger emits one structured access log per request and attaches a
// request-scoped logger (request_id, method, path) for handlers and services.
// 5xx log at error level, 4xx at warn, the rest at info.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	redact := opts.redactor()

	masked := make(map[string]struct{})
	for _, h := range append([]string{"Authorization", "Cookie", "Set-Cookie", HeaderWebhookSecret}, opts.MaskHeaders...) {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = redact(c.Request.URL.Path)
		}
		query := redact(c.Request.URL.RawQuery)

		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := masked[strings.ToLower(k)]; ok {
				headers[k] = "[REDACTED]"
				continue
			}
			headers[k] = redact(strings.Join(vv, ", "))
		}

		reqID := RequestIDFrom(c)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}
		attachLogger(c, log.With().
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger())

		c.Next()

		status := c.Writer.Status()
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", redact(c.Errors.String()))
		}
		ev.
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
