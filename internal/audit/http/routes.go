package audithttp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/platform/httpx"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/shared"
)

// exportsPerMinute bounds CSV exports per caller; each export scans the whole
// filtered window.
const exportsPerMinute = 10

// MountRoutes registers the timeline and the throttled CSV export.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/", h.handleTimeline)
	r.With(httprate.Limit(exportsPerMinute, time.Minute,
		httprate.WithKeyFuncs(exportCaller),
		httprate.WithLimitHandler(exportThrottled),
	)).Get("/export.csv", h.handleExport)
}

// exportCaller keys the export budget by actor, falling back to the client
// address for anonymous calls.
func exportCaller(r *http.Request) (string, error) {
	if actor := shared.ActorFromContext(r.Context()); actor > 0 {
		return "actor:" + strconv.FormatInt(actor, 10), nil
	}
	ip, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + ip, nil
}

func exportThrottled(w http.ResponseWriter, _ *http.Request) {
	httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests",
		"audit export is limited to "+strconv.Itoa(exportsPerMinute)+" requests per minute")
}
