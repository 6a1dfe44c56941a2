package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-relay-bot/internal/domain"
	"github.com/tbourn/go-relay-bot/internal/http/middleware"
)

// DefaultDispatchTimeout bounds the work done for one update, outbound
// retries included.
const DefaultDispatchTimeout = 60 * time.Second

// writeMargin is kept between the end of dispatch and the server's write
// deadline so the acknowledgement still reaches the provider.
const writeMargin = 2 * time.Second

// DispatchTimeout returns the dispatch budget that fits inside a server write
// timeout: writeTimeout minus a margin, capped at DefaultDispatchTimeout and
// never below one second.
func DispatchTimeout(writeTimeout time.Duration) time.Duration {
	d := writeTimeout - writeMargin
	if writeTimeout <= 0 || d > DefaultDispatchTimeout {
		d = DefaultDispatchTimeout
	}
	if d < time.Second {
		d = time.Second
	}
	return d
}

// Dispatcher handles one decoded update.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev domain.Event) error
}

// WebhookHandler accepts Telegram updates.
//
// A relay that failed its startup checks keeps running with ConfigErr set
// and answers every update with 503, so Telegram keeps them queued until the
// process is restarted with a valid configuration.
type WebhookHandler struct {
	Dispatcher Dispatcher
	Secret     string
	ConfigErr  error
	Timeout    time.Duration
}

// AcceptedResponse is returned for every update the relay took over.
type AcceptedResponse struct {
	OK bool `json:"ok" example:"true"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
	Relay  string `json:"relay" example:"ready"`
}

// Webhook godoc
// @ID          postWebhook
// @Summary     Receive a Telegram update
// @Description Accepts one update (a message or a callback query). Handling
// @Description failures past decoding are logged and still answered with 200
// @Description so the provider does not redeliver and duplicate side effects.
// @Description Other update types (edited_message, my_chat_member...) are
// @Description acknowledged with 200 and not processed.
// @Tags        Webhook
// @Accept      json
// @Produce     json
// @Param       X-Telegram-Bot-Api-Secret-Token  header  string  false  "Secret configured with setWebhook"
// @Param       body  body  domain.Update  true  "Telegram update"
// @Success     200  {object}  handlers.AcceptedResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed update"
// @Failure     401  {object}  handlers.ErrorResponse  "Bad secret token"
// @Failure     413  {object}  handlers.ErrorResponse  "Body too large"
// @Failure     503  {object}  handlers.ErrorResponse  "Relay not configured"
// @Router      /webhook [post]
func (h *WebhookHandler) Webhook(c *gin.Context) {
	if h.ConfigErr != nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeNotConfigured, h.ConfigErr.Error())
		return
	}
	if h.Secret != "" {
		got := c.GetHeader(middleware.HeaderWebhookSecret)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.Secret)) != 1 {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "bad secret token")
			return
		}
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "update too large")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable body")
		return
	}
	ev, err := domain.DecodeEvent(body)
	if errors.Is(err, domain.ErrUnhandledUpdate) {
		middleware.LoggerFrom(c).Debug().Int64("update_id", ev.UpdateID).Msg("update type ignored")
		ok(c, http.StatusOK, AcceptedResponse{OK: true})
		return
	}
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadUpdate, err.Error())
		return
	}

	// The provider may hang up before a slow relay finishes; the update is
	// still handled to completion.
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), timeout)
	defer cancel()

	if err := h.Dispatcher.Dispatch(ctx, ev); err != nil {
		_ = c.Error(err)
		middleware.LoggerFrom(c).Warn().Err(err).
			Int64("update_id", ev.UpdateID).
			Int64("chat_id", ev.ChatID()).
			Msg("update handled with errors")
	}
	ok(c, http.StatusOK, AcceptedResponse{OK: true})
}

// Health godoc
// @ID          health
// @Summary     Liveness probe
// @Description Always 200 while the process serves HTTP; relay is "degraded"
// @Description when the bot credentials or group id are missing.
// @Tags        Ops
// @Produce     json
// @Success     200  {object}  handlers.HealthResponse
// @Router      /health [get]
func (h *WebhookHandler) Health(c *gin.Context) {
	state := "ready"
	if h.ConfigErr != nil {
		state = "degraded"
	}
	ok(c, http.StatusOK, HealthResponse{Status: "ok", Relay: state})
}
