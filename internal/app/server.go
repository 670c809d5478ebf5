package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"logcore/internal/metrics"
)

// adminServer is the minimal HTTP surface spec component P calls for:
// a liveness probe, a Prometheus scrape endpoint, and a read-only view
// query endpoint. It never accepts writes — the only way to add a
// record is Ingest, called in-process.
type adminServer struct {
	app    *App
	addr   string
	logger *logrus.Logger
	srv    *http.Server
}

func newAdminServer(a *App, addr string, logger *logrus.Logger) *adminServer {
	s := &adminServer{app: a, addr: addr, logger: logger}
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/view/query", s.viewQuery).Methods(http.MethodGet)
	router.HandleFunc("/view/overview", s.viewOverview).Methods(http.MethodGet)
	s.srv = &http.Server{Addr: addr, Handler: router}
	return s
}

func (s *adminServer) start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("admin server stopped unexpectedly")
		}
	}()
}

func (s *adminServer) stop(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Warn("admin server shutdown reported an error")
	}
}

func (s *adminServer) healthz(w http.ResponseWriter, r *http.Request) {
	oldest, newest, hasRows := s.app.engine.Bounds()
	resp := map[string]any{
		"status":   "ok",
		"has_rows": hasRows,
		"oldest":   oldest,
		"newest":   newest,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// viewQuery reads up to `count` rows starting at index `from` (0-based,
// relative to the oldest record) through the page cache rather than
// straight from the store, so a scrolling admin client reuses whatever
// page a prior request already pulled in. It bypasses the predicate
// entirely — overview filtering is the job of /view/overview and the
// in-process view.Predicate, not of this endpoint.
func (s *adminServer) viewQuery(w http.ResponseWriter, r *http.Request) {
	from, _ := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
	count, err := strconv.Atoi(r.URL.Query().Get("count"))
	if err != nil || count <= 0 {
		count = 100
	}
	if count > 1000 {
		count = 1000
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rows := make([]any, 0, count)
	for i := int64(0); i < int64(count); i++ {
		row, ok, err := s.app.cache.Get(ctx, from+i)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rows)
}

func (s *adminServer) viewOverview(w http.ResponseWriter, r *http.Request) {
	field := r.URL.Query().Get("field")
	if field == "" {
		field = "level"
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.app.view.OverviewCounts(field))
}
