package main

import (
	"context"
	"math"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/miretskiy/compactsim/simulator"
	"go.uber.org/zap"
)

// ClientMessage is a command from the browser.
type ClientMessage struct {
	Type        string                     `json:"type"` // start, stop, config_update, compactions
	Edits       map[string]string          `json:"edits,omitempty"`
	Compactions []simulator.CompactionSpec `json:"compactions,omitempty"`
}

// ServerMessage is pushed to the browser.
type ServerMessage struct {
	Type    string                   `json:"type"` // status, sample, error
	Running *bool                    `json:"running,omitempty"`
	Config  *simulator.Config        `json:"config,omitempty"`
	Sample  *samplePayload           `json:"sample,omitempty"`
	Metrics []simulator.StoreMetrics `json:"metrics,omitempty"`
	Error   string                   `json:"error,omitempty"`
	Fields  []string                 `json:"fields,omitempty"` // offending config fields
}

// samplePayload is an AmplificationSample in a JSON-safe form. Undefined
// write amplification (before a store's first flush) is sent as null.
type samplePayload struct {
	SimTimeMs          int64      `json:"simTimeMs"`
	Titles             []string   `json:"titles"`
	WriteAmplification []*float64 `json:"writeAmplification"`
	ReadAmplification  []int64    `json:"readAmplification"`
}

func newSamplePayload(sample simulator.AmplificationSample) *samplePayload {
	p := &samplePayload{
		SimTimeMs:          sample.SimTime.Milliseconds(),
		Titles:             sample.Titles,
		WriteAmplification: make([]*float64, len(sample.WriteAmplification)),
		ReadAmplification:  sample.ReadAmplification,
	}
	for i, v := range sample.WriteAmplification {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		v := v
		p.WriteAmplification[i] = &v
	}
	return p
}

// safeConn wraps a WebSocket connection with a mutex to prevent concurrent writes
type safeConn struct {
	*websocket.Conn
	writeMu sync.Mutex
}

func (sc *safeConn) WriteJSON(v interface{}) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	return sc.Conn.WriteJSON(v)
}

// messageWriter is the part of safeConn a session writes to.
type messageWriter interface {
	WriteJSON(v interface{}) error
}

// session is one browser's simulator. Samples are forwarded to the browser
// and exported to Prometheus while a run is in progress.
type session struct {
	conn    messageWriter
	sim     *simulator.Simulator
	metrics *storeMetrics
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   sync.WaitGroup

	mu      sync.Mutex
	running bool // a Run goroutine has been started and has not returned
}

func newSession(conn messageWriter, config simulator.Config, metrics *storeMetrics, logger *zap.Logger) (*session, error) {
	s := &session{conn: conn, metrics: metrics, logger: logger}
	sim, err := simulator.NewSimulator(config,
		simulator.WithLogger(logger),
		simulator.WithSink(simulator.SinkFunc(s.record)))
	if err != nil {
		return nil, err
	}
	s.sim = sim
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

func (s *session) record(sample simulator.AmplificationSample) {
	metrics := s.sim.Metrics()
	s.metrics.observe(metrics)
	msg := ServerMessage{Type: "sample", Sample: newSamplePayload(sample), Metrics: metrics}
	if err := s.conn.WriteJSON(msg); err != nil {
		s.logger.Warn("sending sample", zap.Error(err))
	}
}

func (s *session) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *session) sendStatus() error {
	running := s.isRunning()
	cfg := s.sim.Settings().Load().Clone()
	return s.conn.WriteJSON(ServerMessage{Type: "status", Running: &running, Config: &cfg})
}

func (s *session) sendError(err error) error {
	return s.conn.WriteJSON(ServerMessage{
		Type:   "error",
		Error:  err.Error(),
		Fields: simulator.InvalidFields(err),
	})
}

// handle applies one client command and replies with the resulting status,
// or with an error message if the command was rejected.
func (s *session) handle(msg ClientMessage) error {
	switch msg.Type {
	case "start":
		s.startRun()
	case "stop":
		s.sim.Stop()
		return nil
	case "config_update":
		if err := s.sim.Settings().ApplyEdits(msg.Edits); err != nil {
			return s.sendError(err)
		}
	case "compactions":
		err := s.sim.Settings().Update(func(cfg *simulator.Config) {
			cfg.Compactions = msg.Compactions
		})
		if err != nil {
			return s.sendError(err)
		}
	default:
		return s.sendError(simulator.SimError{Message: "unknown command " + msg.Type})
	}
	return s.sendStatus()
}

// startRun starts a run unless this session already has one. It reports
// whether a run was started.
func (s *session) startRun() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.done.Add(1)
	go func() {
		defer s.done.Done()
		if err := s.sim.Run(s.ctx); err != nil {
			s.logger.Warn("simulation failed", zap.Error(err))
			_ = s.sendError(err)
		}
		s.metrics.forget(s.sim.Region().Titles())
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		_ = s.sendStatus()
	}()
	return true
}

// close stops the run, if any, and waits for it to return.
func (s *session) close() {
	s.cancel()
	s.done.Wait()
}
