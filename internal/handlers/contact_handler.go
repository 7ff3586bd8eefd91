package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"contactrelay/internal/api/middleware"
	"contactrelay/internal/metrics"
	"contactrelay/internal/services"
	"contactrelay/internal/templates"
	"contactrelay/internal/utils/logger"

	"github.com/labstack/echo/v4"
)

var log = logger.New("handlers")

type ContactHandler struct {
	contacts *services.ContactService
}

func NewContactHandler(contacts *services.ContactService) *ContactHandler {
	return &ContactHandler{contacts: contacts}
}

type ContactResponse struct {
	OK     bool   `json:"ok"`
	Queued bool   `json:"queued"`
	Error  string `json:"error,omitempty"`
}

// Submit accepts a contact form post as JSON or form data
// @Summary Submit the contact form
// @Tags Contact
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Success 200 {object} ContactResponse
// @Failure 400 {object} ContactResponse
// @Failure 429 {object} ContactResponse
// @Router /api/contact [post]
func (h *ContactHandler) Submit(c echo.Context) error {
	var req services.ContactSubmission
	if err := c.Bind(&req); err != nil {
		metrics.Submissions.WithLabelValues("invalid").Inc()
		return failure(c, http.StatusBadRequest, templates.Strings(requestLang(c)).Form.Invalid)
	}

	req.Normalize()
	form := templates.Strings(req.Lang).Form

	if err := c.Validate(&req); err != nil {
		log.Debug("invalid submission: %v", err)
		metrics.Submissions.WithLabelValues("invalid").Inc()
		return failure(c, http.StatusBadRequest, form.Invalid)
	}

	out, err := h.contacts.Submit(c.Request().Context(), req, middleware.ClientIP(c))
	if errors.Is(err, services.ErrDisposableEmail) {
		return failure(c, http.StatusBadRequest, form.Invalid)
	}
	if err != nil {
		return failure(c, http.StatusInternalServerError, form.Error)
	}

	return c.JSON(http.StatusOK, ContactResponse{OK: true, Queued: out.Queued})
}

// RateLimited renders the localized 429 for the contact endpoint.
func RateLimited(c echo.Context, _ time.Duration) error {
	metrics.Submissions.WithLabelValues("rate_limited").Inc()
	return failure(c, http.StatusTooManyRequests, templates.Strings(requestLang(c)).Form.RateLimit)
}

func failure(c echo.Context, status int, message string) error {
	return c.JSON(status, ContactResponse{OK: false, Error: message})
}

// requestLang picks the language before the body is parsed: the lang query
// parameter, then Accept-Language.
func requestLang(c echo.Context) string {
	if lang := c.QueryParam("lang"); lang != "" {
		return templates.NormalizeLang(lang)
	}
	accept := c.Request().Header.Get("Accept-Language")
	if i := strings.IndexAny(accept, ",;"); i >= 0 {
		accept = accept[:i]
	}
	return templates.NormalizeLang(accept)
}
