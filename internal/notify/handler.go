package notify

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/waylio/waylio-platform/internal/http/respond"
	"github.com/waylio/waylio-platform/pkg/logging"
)

type sender interface {
	Send(ctx context.Context, req Request) (*Log, error)
}

// Handler serves the admin notification endpoints.
type Handler struct {
	templates *TemplateStore
	logs      LogStore
	sender    sender
	logger    *logging.Logger
}

func NewHandler(templates *TemplateStore, logs LogStore, s sender, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{templates: templates, logs: logs, sender: s, logger: logger}
}

// ListTemplates handles GET /admin/notifications/templates.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]any{"templates": h.templates.List(r.Context())})
}

type templateBody struct {
	Type    Channel `json:"type"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
}

// UpsertTemplate handles PUT /admin/notifications/templates/{name}.
func (h *Handler) UpsertTemplate(w http.ResponseWriter, r *http.Request) {
	var body templateBody
	if err := respond.DecodeJSON(r, &body); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	t, err := h.templates.Upsert(r.Context(), Template{
		Name:    TemplateName(strings.ToUpper(chi.URLParam(r, "name"))),
		Type:    Channel(strings.ToUpper(string(body.Type))),
		Subject: body.Subject,
		Body:    body.Body,
	})
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	h.logger.Info("notification template updated", "template", string(t.Name))
	respond.JSON(w, http.StatusOK, t)
}

// ListLogs handles GET /admin/notifications/logs?type=&status=&page=&limit=.
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	result, err := h.logs.List(r.Context(), LogFilter{
		Type:   Channel(strings.ToUpper(q.Get("type"))),
		Status: Status(strings.ToUpper(q.Get("status"))),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, result)
}

// Send handles POST /admin/notifications/send for ad-hoc delivery.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	entry, err := h.sender.Send(r.Context(), req)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusAccepted, entry)
}
