package preview

import (
	"encoding/json"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Server is the developer-preview HTTP server: it rebuilds the bundle
// on every "/" request (sources change constantly during editing, so
// there's no point caching between requests) and serves everything
// else as static files straight out of the project directory.
type Server struct {
	log     *slog.Logger
	dir     string
	watcher *Watcher

	// OnRequest, if set, is called with the request path before each
	// request is served, so a caller can feed its own request counter
	// without this package depending on the metrics package.
	OnRequest func(path string)
}

// New constructs a Server rooted at projectDir. watcher may be nil, in
// which case the poll endpoint always reports "unchanged" immediately
// rather than holding.
func New(log *slog.Logger, projectDir string, watcher *Watcher) *Server {
	return &Server{log: log, dir: projectDir, watcher: watcher}
}

// Listen starts the server on an ephemeral port and returns its address
// and a function that stops it.
func (s *Server) Listen() (addr string, stop func(), err error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}
	httpServer := &http.Server{Handler: s}
	go func() {
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("preview server stopped", slog.String("error", err.Error()))
		}
	}()
	return listener.Addr().String(), func() { httpServer.Close() }, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.OnRequest != nil {
		s.OnRequest(r.URL.Path)
	}
	switch {
	case r.URL.Path == "/" || r.URL.Path == "/index.html":
		s.serveBundle(w, r)
	case r.URL.Path == "/__poll":
		s.servePoll(w, r)
	default:
		s.serveStatic(w, r)
	}
}

func (s *Server) serveBundle(w http.ResponseWriter, r *http.Request) {
	bundle, err := BuildBundle(s.dir)
	if err != nil {
		http.Error(w, "failed to build preview: "+err.Error(), http.StatusInternalServerError)
		return
	}
	for _, warn := range bundle.Warnings {
		s.log.Debug("preview bundle warning", slog.String("warning", warn))
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(RenderHTML(bundle)))
}

func (s *Server) servePoll(w http.ResponseWriter, r *http.Request) {
	sinceMillis, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)

	var changed bool
	var lastMod int64
	if s.watcher != nil {
		changed, lastMod = s.watcher.WaitForChange(r.Context().Done(), sinceMillis, 2*time.Second)
	} else {
		lastMod = time.Now().UnixMilli()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"changed":      changed,
		"lastModified": lastMod,
	})
}

func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) {
	rel := filepath.FromSlash(strings.TrimPrefix(r.URL.Path, "/"))
	full := filepath.Join(s.dir, rel)
	if !strings.HasPrefix(full, filepath.Clean(s.dir)) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	data, err := os.ReadFile(full)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if ctype := mime.TypeByExtension(filepath.Ext(full)); ctype != "" {
		w.Header().Set("Content-Type", ctype)
	}
	w.Write(data)
}
