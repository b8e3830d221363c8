package visualization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/evonet/internal/constants"
	"github.com/nvandessel/evonet/internal/network"
	"github.com/nvandessel/evonet/internal/ratelimit"
)

// ActivationResult is the response body of /api/activate.
type ActivationResult struct {
	Outputs     []float64 `json:"outputs"`
	Activations []float64 `json:"activations"`
}

// Server serves the network page and handles activation API requests.
type Server struct {
	title      string
	net        *network.Network
	limiter    *ratelimit.Limiter
	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	addr       string
}

// NewServer creates a visualization server for a private clone of net.
func NewServer(title string, net *network.Network) *Server {
	return &Server{
		title:   title,
		net:     net.Clone(),
		limiter: ratelimit.NewLimiter(constants.ActivateRate, constants.ActivateBurst),
	}
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/graph", s.handleGraph)
	mux.Handle("/api/activate", s.limiter.Middleware(http.HandlerFunc(s.handleActivate)))
	return mux
}

// ListenAndServe starts the HTTP server on an OS-assigned port and blocks
// until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// Let the OS pick a free port.
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	err = s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) snapshot() network.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net.Snapshot()
}

// handleIndex serves the network HTML page with the API base URL configured.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	html, err := RenderHTMLForServer(s.title, s.snapshot(), "http://"+s.Addr())
	if err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(html)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RenderJSON(s.snapshot()))
}

// handleActivate runs one inference step for ?input=v1,v2,... and returns the
// outputs plus every node's activation in activation order. Recurrent state
// carries over between requests.
func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("input")
	if raw == "" {
		http.Error(w, "missing 'input' query parameter", http.StatusBadRequest)
		return
	}
	inputs, err := ParseVector(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	outputs, err := s.net.ActivateNoTrace(inputs)
	var acts []float64
	if err == nil {
		for _, id := range s.net.Order() {
			info, _ := s.net.Node(id)
			acts = append(acts, info.Activation)
		}
	}
	s.mu.Unlock()

	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, network.ErrInputSizeMismatch) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, "activation error: "+err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ActivationResult{Outputs: outputs, Activations: acts})
}

// ParseVector parses a comma-separated list of floats.
func ParseVector(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", p)
		}
		out = append(out, v)
	}
	return out, nil
}
