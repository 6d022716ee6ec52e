package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/miretskiy/compactsim/simulator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

//go:embed templates/index.html
var templates embed.FS

var indexTemplate = template.Must(template.ParseFS(templates, "templates/index.html"))

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development
		return true
	},
}

type server struct {
	logger  *zap.Logger
	config  simulator.Config
	metrics *storeMetrics
}

func (s *server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := s.logger.With(zap.String("client", r.RemoteAddr))
	logger.Info("client connected")
	defer logger.Info("client disconnected")

	sess, err := newSession(&safeConn{Conn: conn}, s.config, s.metrics, logger)
	if err != nil {
		logger.Error("creating simulator", zap.Error(err))
		return
	}
	defer sess.close()

	if err := sess.sendStatus(); err != nil {
		logger.Warn("sending status", zap.Error(err))
		return
	}

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("reading message", zap.Error(err))
			}
			return
		}
		logger.Debug("received command", zap.String("type", msg.Type))
		if err := sess.handle(msg); err != nil {
			logger.Warn("sending reply", zap.Error(err))
			return
		}
	}
}

func (s *server) serveHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, simulator.ConfigFields()); err != nil {
		s.logger.Error("executing template", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	configFile := flag.String("config", "", "Path to a JSON or YAML configuration file")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	logger, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	config := simulator.DefaultConfig()
	if *configFile != "" {
		if config, err = simulator.LoadConfig(*configFile); err != nil {
			logger.Fatal("loading config", zap.Error(err))
		}
	}

	s := &server{
		logger:  logger,
		config:  config,
		metrics: newStoreMetrics(prometheus.DefaultRegisterer),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveHome)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: *addr, Handler: mux}
	mux.HandleFunc("/quitquitquit", func(w http.ResponseWriter, r *http.Request) {
		logger.Info("shutdown requested")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "Server shutting down...")
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	})

	logger.Info("server starting", zap.String("addr", *addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server failed", zap.Error(err))
	}
	logger.Info("server stopped")
}
