package handlers

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/kang-git/threejs-sync-server/internal/eventstore"
	"github.com/kang-git/threejs-sync-server/internal/foundation/errors"
	"github.com/kang-git/threejs-sync-server/internal/orchestrator"
	"github.com/kang-git/threejs-sync-server/internal/server/responses"
	"github.com/kang-git/threejs-sync-server/internal/version"
)

// Runtime is what the handlers need from the running service.
type Runtime interface {
	Status() orchestrator.Status
	StartTime() time.Time
}

// HistoryProvider lists recent cycles.
type HistoryProvider interface {
	History() []eventstore.CycleSummary
}

// MonitoringHandlers serves status, health and cycle history.
type MonitoringHandlers struct {
	runtime      Runtime
	history      HistoryProvider
	serveDir     string
	errorAdapter *errors.HTTPErrorAdapter
	now          func() time.Time
}

// NewMonitoringHandlers creates handlers. history may be nil.
func NewMonitoringHandlers(runtime Runtime, history HistoryProvider, serveDir string, logger *slog.Logger) *MonitoringHandlers {
	return &MonitoringHandlers{
		runtime:      runtime,
		history:      history,
		serveDir:     serveDir,
		errorAdapter: errors.NewHTTPErrorAdapter(logger),
		now:          time.Now,
	}
}

// HandleStatus reports sync state, version and the last successful sync.
func (h *MonitoringHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st := h.runtime.Status()
	resp := responses.StatusResponse{
		Status:    summarize(st),
		Version:   version.Version,
		LastCycle: st.LastCycle,
		Running:   st.Running,
		Counts:    st.Counts,
		Uptime:    h.now().Sub(h.runtime.StartTime()).Seconds(),
		Timestamp: h.now().UTC(),
	}
	if !st.LastSuccess.IsZero() {
		last := st.LastSuccess.UTC()
		resp.LastSync = &last
	}
	h.write(w, r, resp)
}

// HandleHealth answers liveness probes. The process is healthy whenever it can
// answer; servable reports whether an artifact tree has been published.
func (h *MonitoringHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_, err := os.Stat(filepath.Join(h.serveDir, "index.html"))
	h.write(w, r, responses.HealthResponse{
		Status:    "healthy",
		Timestamp: h.now().UTC(),
		Version:   version.Version,
		Uptime:    h.now().Sub(h.runtime.StartTime()).Seconds(),
		Servable:  err == nil,
	})
}

// HandleCycles lists recent cycles from the event history.
func (h *MonitoringHandlers) HandleCycles(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.NewError(errors.CategoryNotFound, "cycle history is not enabled").Build())
		return
	}
	cycles := h.history.History()
	if cycles == nil {
		cycles = []eventstore.CycleSummary{}
	}
	h.write(w, r, responses.CyclesResponse{Cycles: cycles})
}

func (h *MonitoringHandlers) write(w http.ResponseWriter, r *http.Request, v any) {
	if err := writeJSONPretty(w, r, http.StatusOK, v); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			errors.WrapError(err, errors.CategoryInternal, "failed to write response").Build())
	}
}

func summarize(st orchestrator.Status) string {
	switch {
	case st.Running:
		return "syncing"
	case st.LastCycle == nil && st.LastSuccess.IsZero():
		return "starting"
	case st.LastCycle == nil:
		return "ok"
	}
	switch st.LastCycle.Outcome {
	case orchestrator.OutcomeSuccess:
		return "ok"
	case orchestrator.OutcomeDegradedSuccess:
		return "degraded"
	default:
		return "failing"
	}
}
