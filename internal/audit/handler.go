package audit

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/waylio/waylio-platform/internal/apperr"
	"github.com/waylio/waylio-platform/internal/http/respond"
	"github.com/waylio/waylio-platform/pkg/logging"
)

type lister interface {
	List(ctx context.Context, f Filter) (*Page, error)
}

// Handler serves GET /admin/audit-logs.
type Handler struct {
	svc    lister
	logger *logging.Logger
}

func NewHandler(svc lister, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// List accepts userId, action, resourceType, resourceId, from, to, page and limit.
// from/to take RFC 3339 timestamps or YYYY-MM-DD dates.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := Filter{
		UserID:       q.Get("userId"),
		Action:       Action(strings.ToUpper(q.Get("action"))),
		ResourceType: ResourceType(strings.ToUpper(q.Get("resourceType"))),
		ResourceID:   q.Get("resourceId"),
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))

	fields := map[string]string{}
	var err error
	if f.From, err = parseBound(q.Get("from")); err != nil {
		fields["from"] = "must be RFC 3339 or YYYY-MM-DD"
	}
	if f.To, err = parseBound(q.Get("to")); err != nil {
		fields["to"] = "must be RFC 3339 or YYYY-MM-DD"
	}
	if len(fields) > 0 {
		respond.Error(w, r, h.logger, apperr.Validation("Invalid query", fields))
		return
	}

	page, err := h.svc.List(r.Context(), f)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, page)
}

func parseBound(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}
