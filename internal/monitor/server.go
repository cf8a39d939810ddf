package monitor

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gorilla/mux"

	"github.com/banshee-data/crowdheat/internal/heatmap/l4render"
	"github.com/banshee-data/crowdheat/internal/httputil"
	"github.com/banshee-data/crowdheat/internal/monitoring"
	"github.com/banshee-data/crowdheat/internal/storage/sqlite"
	"github.com/banshee-data/crowdheat/internal/version"
)

//go:embed status.html
var statusHTML string

var statusTemplate = template.Must(template.New("status").Parse(statusHTML))

// WebServer serves the live monitor: run status, the latest composited
// frame, density charts and the run history.
type WebServer struct {
	address string
	state   *State
	runs    *sqlite.RunStore
	feeds   *sqlite.FeedStore
	density *sqlite.DensityStore
	server  *http.Server
}

// WebServerConfig configures NewWebServer. State and DB are both optional;
// endpoints that need a missing one answer 404.
type WebServerConfig struct {
	Address string
	State   *State
	DB      *sqlite.DB
}

// NewWebServer creates a web server. Call Start to listen.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address: config.Address,
		state:   config.State,
	}
	if config.DB != nil {
		ws.runs = sqlite.NewRunStore(config.DB)
		ws.feeds = sqlite.NewFeedStore(config.DB)
		ws.density = sqlite.NewDensityStore(config.DB)
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           ws.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws
}

// Handler returns the router, for mounting or tests.
func (ws *WebServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", ws.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/health", ws.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/status", ws.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/frame.jpg", ws.handleFrame).Methods(http.MethodGet)
	r.HandleFunc("/heatmap.png", ws.handleHeatmapPNG).Methods(http.MethodGet)
	r.HandleFunc("/charts/density", ws.handleDensityChart).Methods(http.MethodGet)
	r.HandleFunc("/api/runs", ws.handleListRuns).Methods(http.MethodGet)
	r.HandleFunc("/api/runs/{id}", ws.handleGetRun).Methods(http.MethodGet)
	r.HandleFunc("/api/feeds", ws.handleListFeeds).Methods(http.MethodGet)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Start listens until ctx is cancelled, then shuts down gracefully. It
// returns an error only when the listener cannot be opened.
func (ws *WebServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ws.address)
	if err != nil {
		return fmt.Errorf("monitor listen %s: %w", ws.address, err)
	}
	monitoring.Logf("[monitor] serving on http://%s", ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		if err := ws.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			monitoring.Logf("[monitor] server error: %v", err)
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("[monitor] shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			monitoring.Logf("[monitor] force close error: %v", err)
		}
	}
	monitoring.Logf("[monitor] stopped")
	return nil
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.String()})
}

func (ws *WebServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Version string
		Live    bool
		Status  Status
		Store   bool
	}{Version: version.String(), Live: ws.state != nil, Store: ws.runs != nil}
	if ws.state != nil {
		data.Status = ws.state.Status()
	}
	var buf bytes.Buffer
	if err := statusTemplate.Execute(&buf, data); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render status page: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if ws.state == nil {
		httputil.WriteJSONError(w, http.StatusNotFound, "no live run")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ws.state.Status())
}

func (ws *WebServer) handleFrame(w http.ResponseWriter, r *http.Request) {
	if ws.state == nil {
		httputil.WriteJSONError(w, http.StatusNotFound, "no live run")
		return
	}
	img := ws.state.Frame()
	if img == nil {
		httputil.WriteJSONError(w, http.StatusNotFound, "no frame rendered yet")
		return
	}
	quality, err := httputil.QueryInt(r, "quality", 85, 1, 100)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("encode frame: %v", err))
		return
	}
	httputil.WriteImage(w, "image/jpeg", buf.Bytes())
}

func (ws *WebServer) handleHeatmapPNG(w http.ResponseWriter, r *http.Request) {
	snap, status, msg := ws.resolveDensity(r)
	if snap == nil {
		httputil.WriteJSONError(w, status, msg)
		return
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, l4render.Heatmap(snap.field), imaging.PNG); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("encode heatmap: %v", err))
		return
	}
	httputil.WriteImage(w, "image/png", buf.Bytes())
}

func (ws *WebServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if ws.runs == nil {
		httputil.WriteJSONError(w, http.StatusNotFound, "no run store configured")
		return
	}
	limit, err := httputil.QueryInt(r, "limit", 50, 1, 1000)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := ws.runs.List(r.URL.Query().Get("video"), limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*sqlite.Run{}
	}
	httputil.WriteJSON(w, http.StatusOK, runs)
}

func (ws *WebServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if ws.runs == nil {
		httputil.WriteJSONError(w, http.StatusNotFound, "no run store configured")
		return
	}
	run, err := ws.runs.Get(mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, run)
}

func (ws *WebServer) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	if ws.feeds == nil {
		httputil.WriteJSONError(w, http.StatusNotFound, "no feed store configured")
		return
	}
	feeds, err := ws.feeds.Videos()
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if feeds == nil {
		feeds = []sqlite.FeedSummary{}
	}
	httputil.WriteJSON(w, http.StatusOK, feeds)
}
