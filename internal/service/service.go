package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dwrandle/automation-bridge/internal/board"
	"github.com/dwrandle/automation-bridge/internal/infrastructure/config"
	"github.com/dwrandle/automation-bridge/internal/infrastructure/logging"
	"github.com/dwrandle/automation-bridge/internal/state"
)

// maxPollFailures is the number of consecutive failed polls tolerated
// before the link is forced down and re-validated from scratch.
const maxPollFailures = 3

// BoardLink is the board surface the service drives.
// Satisfied by board.Link.
type BoardLink interface {
	Connect(ctx context.Context) error
	Disconnect() error
	State() board.LinkState
	Connected() bool
	Status() (board.DeviceStatus, error)
	Version() string
	PortName() string
	LastError() error
}

// MQTTSession is the broker connection the service supervises.
// Satisfied by mqtt.Client.
type MQTTSession interface {
	IsConnected() bool
	Close() error
}

// MessageBridge is the MQTT bridge surface the service feeds.
// Satisfied by bridge.Bridge.
type MessageBridge interface {
	Start() error
	Refresh() <-chan struct{}
	PublishStatus(status board.DeviceStatus, firmware string) error
	PublishInputChange(index int, high bool) error
}

// SnapshotRecorder persists snapshots. Satisfied by history.Store.
type SnapshotRecorder interface {
	RecordSnapshot(ctx context.Context, status board.DeviceStatus, taken time.Time) error
}

// MetricsRecorder exports measurements. Satisfied by influxdb.Client.
type MetricsRecorder interface {
	WriteBoardStatus(port string, adcs []float64, inputs []bool)
	WriteRelayState(port string, index int, on bool)
}

// Deps holds the dependencies required by the Service.
type Deps struct {
	Config *config.Config
	Logger *logging.Logger
	Link   BoardLink
	Cache  *state.Cache

	// ConnectMQTT dials the broker and builds the message bridge over
	// the connected session. Called at startup and retried on the
	// configured interval until it succeeds. Nil disables MQTT.
	ConnectMQTT func() (MQTTSession, MessageBridge, error)

	History SnapshotRecorder // optional
	Metrics MetricsRecorder  // optional
}

// Service runs the bridge's poll loop and supervises its connections.
type Service struct {
	cfg    *config.Config
	logger *logging.Logger
	link   BoardLink
	cache  *state.Cache

	connectMQTT func() (MQTTSession, MessageBridge, error)
	history     SnapshotRecorder
	metrics     MetricsRecorder

	mu         sync.Mutex
	mqtt       MQTTSession
	bridge     MessageBridge
	lastInputs []bool
	lastRelays []bool
	failures   int // consecutive poll failures

	pollErrors    atomic.Uint64
	publishErrors atomic.Uint64
	startTime     time.Time

	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Service. It does not touch the board or broker until
// Start is called.
func New(deps Deps) *Service {
	return &Service{
		cfg:         deps.Config,
		logger:      deps.Logger,
		link:        deps.Link,
		cache:       deps.Cache,
		connectMQTT: deps.ConnectMQTT,
		history:     deps.History,
		metrics:     deps.Metrics,
	}
}

// Start launches the poll loop and, when MQTT is enabled, the broker
// connect loop. Returns immediately; use Stop to shut down.
func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.startTime = time.Now()

	if s.connectMQTT != nil {
		s.wg.Add(1)
		go s.mqttConnectLoop(runCtx)
	}

	s.wg.Add(1)
	go s.run(runCtx)

	s.logger.Info("bridge service started",
		"poll_interval", s.cfg.MQTT.GetPublishInterval(),
		"mqtt_enabled", s.connectMQTT != nil,
	)
	return nil
}

// Stop shuts the service down: the loops exit, the board link closes,
// and the MQTT session announces offline. Safe to call more than once.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()

		if err := s.link.Disconnect(); err != nil {
			s.logger.Warn("disconnecting board", "error", err)
		}

		s.mu.Lock()
		session := s.mqtt
		s.mu.Unlock()
		if session != nil {
			if err := session.Close(); err != nil {
				s.logger.Warn("closing mqtt session", "error", err)
			}
		}

		s.logger.Info("bridge service stopped")
	})
}

// Health reports runtime counters and connection states.
func (s *Service) Health() map[string]any {
	s.mu.Lock()
	session := s.mqtt
	s.mu.Unlock()

	mqttConnected := session != nil && session.IsConnected()

	health := map[string]any{
		"uptime_s":       int64(time.Since(s.startTime).Seconds()),
		"mqtt_connected": mqttConnected,
		"poll_errors":    s.pollErrors.Load(),
		"publish_errors": s.publishErrors.Load(),
		"link_state":     s.link.State().String(),
	}
	if taken := s.cache.TakenAt(); !taken.IsZero() {
		health["last_poll"] = taken.UTC().Format(time.RFC3339)
	}
	if err := s.link.LastError(); err != nil {
		health["link_error"] = err.Error()
	}
	return health
}

// run is the poll loop. A tick or a refresh request triggers one step.
func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.MQTT.GetPublishInterval())
	defer ticker.Stop()

	// First step without waiting for the first tick.
	s.step(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.step(ctx)
		case <-s.refreshCh():
			s.step(ctx)
		}
	}
}

// refreshCh returns the bridge's refresh channel, or a nil channel
// (blocks forever in select) while MQTT is not yet connected.
func (s *Service) refreshCh() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bridge == nil {
		return nil
	}
	return s.bridge.Refresh()
}

// step performs one poll cycle: ensure the link is up, snapshot the
// board, and fan the snapshot out.
func (s *Service) step(ctx context.Context) {
	if !s.link.Connected() {
		// Faulted links wait out their retry window; State reads
		// Disconnected once a reconnect attempt is due.
		if s.link.State() != board.StateDisconnected {
			return
		}
		if err := s.link.Connect(ctx); err != nil {
			s.pollErrors.Add(1)
			return // the link logs its own connect failures
		}
		s.mu.Lock()
		s.lastInputs = nil
		s.lastRelays = nil
		s.failures = 0
		s.mu.Unlock()
	}

	status, err := s.link.Status()
	if err != nil {
		s.pollErrors.Add(1)
		s.mu.Lock()
		s.failures++
		tooMany := s.failures >= maxPollFailures
		if tooMany {
			s.failures = 0
		}
		s.mu.Unlock()

		if tooMany {
			s.logger.Warn("too many consecutive poll failures, forcing reconnect",
				"failures", maxPollFailures,
				"error", err,
			)
			// The cache keeps serving the last good snapshot while
			// the link re-validates; its age tells readers how stale.
			if derr := s.link.Disconnect(); derr != nil {
				s.logger.Warn("disconnecting board", "error", derr)
			}
		}
		return
	}

	now := time.Now()
	s.mu.Lock()
	s.failures = 0
	prevInputs := s.lastInputs
	s.lastInputs = append([]bool(nil), status.Inputs...)
	prevRelays := s.lastRelays
	s.lastRelays = append([]bool(nil), status.Relays...)
	msgBridge := s.bridge
	s.mu.Unlock()

	s.cache.Update(status, now)

	if msgBridge != nil {
		s.publishInputEdges(msgBridge, prevInputs, status.Inputs)
		if err := msgBridge.PublishStatus(status, s.link.Version()); err != nil {
			s.publishErrors.Add(1)
			s.logger.Warn("publishing status", "error", err)
		}
	}

	if s.history != nil {
		if err := s.history.RecordSnapshot(ctx, status, now); err != nil {
			s.logger.Warn("recording snapshot", "error", err)
		}
	}

	if s.metrics != nil {
		s.metrics.WriteBoardStatus(s.link.PortName(), status.ADCs, status.Inputs)
		s.writeRelayEdges(prevRelays, status.Relays)
	}
}

// writeRelayEdges exports a relay_state point for every relay that
// changed since the last poll, no matter which surface commanded it.
// Like input edges, the first poll after a connect writes nothing.
func (s *Service) writeRelayEdges(prev, current []bool) {
	if prev == nil || len(prev) != len(current) {
		return
	}
	for i := range current {
		if current[i] != prev[i] {
			s.metrics.WriteRelayState(s.link.PortName(), i+1, current[i])
		}
	}
}

// publishInputEdges announces every input that changed since the last
// poll. The first poll after a connect publishes nothing: there is no
// previous level to compare against.
func (s *Service) publishInputEdges(msgBridge MessageBridge, prev, current []bool) {
	if prev == nil || len(prev) != len(current) {
		return
	}
	for i := range current {
		if current[i] == prev[i] {
			continue
		}
		if err := msgBridge.PublishInputChange(i+1, current[i]); err != nil {
			s.publishErrors.Add(1)
			s.logger.Warn("publishing input change", "input", i+1, "error", err)
		}
	}
}

// mqttConnectLoop dials the broker until it succeeds, then hands the
// session over to the poll loop. After the first successful connect the
// client library owns reconnection.
func (s *Service) mqttConnectLoop(ctx context.Context) {
	defer s.wg.Done()

	retry := s.cfg.MQTT.Reconnect.GetRetryInterval()
	if retry <= 0 {
		retry = 15 * time.Second
	}

	for {
		session, msgBridge, err := s.connectMQTT()
		if err == nil {
			if err := msgBridge.Start(); err != nil {
				s.logger.Error("starting mqtt bridge", "error", err)
				_ = session.Close()
			} else {
				s.mu.Lock()
				s.mqtt = session
				s.bridge = msgBridge
				s.mu.Unlock()
				s.logger.Info("mqtt session established")
				return
			}
		} else {
			s.logger.Warn("mqtt broker unreachable, will retry",
				"retry_in", retry,
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}
