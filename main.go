package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	scalargo "github.com/bdpiprava/scalar-go"

	"sneaker-hunter/pkg/api"
	"sneaker-hunter/pkg/app"
	"sneaker-hunter/pkg/config"
	"sneaker-hunter/pkg/orchestrator"
	"sneaker-hunter/pkg/registry"
)

// core is the part of the orchestrator the HTTP shell uses.
type core interface {
	Lookup(ctx context.Context, query string, forceRefresh bool) orchestrator.LookupResult
	Pricing(ctx context.Context, sku string) orchestrator.PricingResult
}

type server struct {
	core     core
	registry *registry.Registry
	specDir  string
	logger   *slog.Logger
}

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer a.Close()

	s := &server{
		core:     a.Orchestrator,
		registry: a.Registry,
		specDir:  cfg.Server.SpecDir,
		logger:   a.Logger,
	}

	port := strconv.Itoa(cfg.Server.Port)
	ip := GetOutboundIP()
	if ip != nil {
		fmt.Printf("Local Network URL: http://%s:%s\n", ip.String(), port)
	} else {
		fmt.Println("Could not determine local IP address.")
	}
	fmt.Printf("Access URL: http://localhost:%s\n", port)
	fmt.Printf("API Docs: http://localhost:%s/\n", port)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.routes(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout.Duration,
		IdleTimeout:       cfg.Server.IdleTimeout.Duration,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		a.Logger.Error("listen", slog.String("addr", srv.Addr), slog.String("error", err.Error()))
		return
	}
	if err := serve(ctx, srv, ln, 10*time.Second); err != nil {
		a.Logger.Error("server stopped", slog.String("error", err.Error()))
	}
}

// serve runs srv on ln until ctx is done, then returns once in-flight
// requests have drained or drain has passed.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, drain time.Duration) error {
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if serveErr := <-errc; !errors.Is(serveErr, http.ErrServerClosed) {
		err = errors.Join(err, serveErr)
	}
	return err
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.rootHandler)
	mux.HandleFunc("/search", s.searchHandler)
	mux.HandleFunc("/sources", s.sourcesHandler)
	mux.HandleFunc("/products/", s.pricesHandler)
	return mux
}

func (s *server) rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		api.WriteNotFound(w, "Unknown path. See the API docs at /", r.URL.Path)
		return
	}

	// Serve Scalar docs on root path
	html, err := scalargo.NewV2(
		scalargo.WithSpecDir(s.specDir),
		scalargo.WithMetaDataOpts(
			scalargo.WithTitle("Sneaker Hunter API"),
		),
	)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, html)
}

func GetOutboundIP() net.IP {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		addrs, _ := net.InterfaceAddrs()
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					return ipnet.IP
				}
			}
		}
		return nil
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)

	return localAddr.IP
}

// searchHandler serves GET /search?q={query}&refresh={bool}. Source
// failures are reported in meta.errors; only a malformed request is a 4xx.
func (s *server) searchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w, http.MethodGet, r.URL.Path)
		return
	}

	q, err := api.ValidateQuery(r.URL.Query().Get("q"))
	if err != nil {
		api.WriteBadRequest(w, err.Error(), r.URL.Path)
		return
	}

	refresh := false
	if raw := r.URL.Query().Get("refresh"); raw != "" {
		if refresh, err = strconv.ParseBool(raw); err != nil {
			api.WriteBadRequest(w, fmt.Sprintf("Invalid refresh flag: %s. Use true or false.", raw), r.URL.Path)
			return
		}
	}

	res := s.core.Lookup(r.Context(), q, refresh)
	s.logger.Debug("search served",
		slog.String("query", res.Meta.Query),
		slog.Bool("cached", res.Meta.Cached),
		slog.Int("aggregated", len(res.Aggregated)),
		slog.Int("errors", len(res.Meta.Errors)),
	)
	api.WriteJSON(w, http.StatusOK, res)
}

type sourceInfo struct {
	registry.Source
	Timeout string `json:"timeout"`
}

func (s *server) sourcesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w, http.MethodGet, r.URL.Path)
		return
	}

	all := s.registry.All()
	out := make([]sourceInfo, 0, len(all))
	for _, src := range all {
		out = append(out, sourceInfo{Source: src, Timeout: src.Deadline().String()})
	}
	api.WriteJSON(w, http.StatusOK, out)
}

// pricesHandler serves GET /products/{sku}/prices.
func (s *server) pricesHandler(w http.ResponseWriter, r *http.Request) {
	// Path expected: /products/{sku}/prices
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "products" || parts[2] != "prices" {
		api.WriteNotFound(w, "Invalid path. Expected /products/{sku}/prices", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w, http.MethodGet, r.URL.Path)
		return
	}

	sku, err := api.ValidateQuery(parts[1])
	if err != nil {
		api.WriteBadRequest(w, "Invalid SKU: "+err.Error(), r.URL.Path)
		return
	}

	res := s.core.Pricing(r.Context(), sku)
	if err := res.Err(); err != nil {
		api.WriteSourceError(w, err, r.URL.Path)
		return
	}
	api.WriteJSON(w, http.StatusOK, res)
}
