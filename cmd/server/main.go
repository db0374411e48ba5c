package main

import (
	"fmt"
	"html/template"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/miretskiy/manetsim/experiment"
	"github.com/miretskiy/manetsim/logging"
)

var log = logging.Component("server")

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development
		return true
	},
}

// Client message types
type ClientMessage struct {
	Type   string             `json:"type"`
	Config *experiment.Config `json:"config,omitempty"`
}

// Server message types
type ServerMessage struct {
	Type    string                 `json:"type"`
	Running *bool                  `json:"running,omitempty"`
	Config  *experiment.Config     `json:"config,omitempty"`
	Result  *experiment.Result     `json:"result,omitempty"`
	State   map[string]interface{} `json:"state,omitempty"`
	Message string                 `json:"message,omitempty"`
}

// simState manages the simulation state and UI pacing
type simState struct {
	exp     *experiment.Experiment
	config  experiment.Config
	running bool
	paused  bool
	clock   int64 // simulated time the UI has paced up to
	err     error
	mu      sync.Mutex
	stopCh  chan struct{}
	logFn   func(msg string)
}

func newSimState(config experiment.Config, logFn func(msg string)) (*simState, error) {
	s := &simState{
		config: config,
		stopCh: make(chan struct{}),
		logFn:  logFn,
	}
	if err := s.build(); err != nil {
		return nil, err
	}
	return s, nil
}

// build replaces the experiment with a fresh one from s.config
func (s *simState) build() error {
	exp, err := experiment.New(s.config, logging.Component("kernel"))
	if err != nil {
		return err
	}
	exp.Simulator().LogEvent = s.logFn
	s.exp = exp
	s.clock = 0
	s.err = nil
	return nil
}

// start begins the simulation (sets running flag)
func (s *simState) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.paused = false
}

// pause pauses the simulation
func (s *simState) pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// reset rebuilds the experiment from the current configuration
func (s *simState) reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.paused = false
	return s.build()
}

// updateConfig validates config and restarts the experiment with it
func (s *simState) updateConfig(config experiment.Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = config
	s.running = false
	return s.build()
}

// isRunning returns true if simulation is running and not paused
func (s *simState) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && !s.paused
}

// getConfig returns the current experiment configuration
func (s *simState) getConfig() experiment.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// step advances the simulation by dt units of simulated time (called by UI
// ticker). A fatal kernel error stops the run.
func (s *simState) step(dt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.paused || s.err != nil {
		return s.err
	}
	sim := s.exp.Simulator()
	s.clock += dt
	if err := sim.RunUntil(s.clock); err != nil {
		s.err = err
		s.running = false
		return err
	}
	if sim.IsQueueEmpty() {
		s.running = false
	}
	return nil
}

// result returns the summaries so far, without per-request histories
func (s *simState) result() (experiment.Result, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.exp.Result()
	res.Metrics = nil
	return res, s.exp.Simulator().Pending()
}

// state returns current state
func (s *simState) state() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exp.Simulator().State()
}

// stop signals the UI loop to stop
func (s *simState) stop() {
	close(s.stopCh)
}

// uiUpdateLoop periodically advances the simulation and sends updates to the
// client. This runs in its own goroutine and controls UI pacing.
func uiUpdateLoop(conn *safeConn, state *simState) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-state.stopCh:
			log.Info().Msg("UI update loop stopping")
			return

		case <-ticker.C:
			if !state.isRunning() {
				continue
			}
			if err := state.step(stepSize); err != nil {
				log.Error().Err(err).Msg("simulation aborted")
				if conn.send(ServerMessage{Type: "error", Message: err.Error()}) != nil {
					return
				}
				continue
			}

			res, pending := state.result()
			updatePrometheusMetrics(res, pending)
			if conn.send(ServerMessage{Type: "metrics", Result: &res}) != nil {
				return
			}
			if conn.send(ServerMessage{Type: "state", State: state.state()}) != nil {
				return
			}
		}
	}
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

// send writes msg, logging a failed write
func (sc *safeConn) send(msg ServerMessage) error {
	err := sc.WriteJSON(msg)
	if err != nil {
		log.Error().Err(err).Str("type", msg.Type).Msg("sending message")
	}
	return err
}

func (sc *safeConn) sendStatus(state *simState) {
	running := state.isRunning()
	cfg := state.getConfig()
	sc.send(ServerMessage{Type: "status", Running: &running, Config: &cfg})
}

func handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("upgrading connection")
		return
	}
	defer conn.Close()

	// Wrap connection with mutex for safe concurrent writes
	safeConn := &safeConn{Conn: conn}
	log.Info().Str("remote", r.RemoteAddr).Msg("client connected")

	state, err := newSimState(baseConfig, func(msg string) {
		safeConn.send(ServerMessage{Type: "log", Message: msg})
	})
	if err != nil {
		log.Error().Err(err).Msg("creating simulator")
		return
	}
	safeConn.sendStatus(state)

	go uiUpdateLoop(safeConn, state)

	// Handle messages from client
	for {
		var msg ClientMessage
		err := conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Msg("reading message")
			}
			break
		}

		log.Info().Str("command", msg.Type).Msg("received command")

		switch msg.Type {
		case "start":
			state.start()
		case "pause":
			state.pause()
		case "reset":
			if err := state.reset(); err != nil {
				log.Error().Err(err).Msg("resetting simulator")
			}
		case "config_update":
			if msg.Config == nil {
				continue
			}
			if err := state.updateConfig(*msg.Config); err != nil {
				log.Error().Err(err).Msg("updating config")
				safeConn.send(ServerMessage{Type: "error", Message: err.Error()})
				continue
			}
		default:
			continue
		}
		safeConn.sendStatus(state)
	}

	state.stop()
	log.Info().Str("remote", r.RemoteAddr).Msg("client disconnected")
}

func serveHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, nil); err != nil {
		log.Error().Err(err).Msg("executing template")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func quitHandler(w http.ResponseWriter, r *http.Request) {
	log.Info().Msg("shutdown requested via /quitquitquit")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "Server shutting down...")

	go func() {
		time.Sleep(100 * time.Millisecond)
		log.Info().Msg("server stopped")
		os.Exit(0)
	}()
}

var (
	addr         string
	configPath   string
	stepSize     int64
	tickInterval time.Duration
	baseConfig   = experiment.DefaultConfig()
)

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve a live LMS simulation over websocket",
	RunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			cfg, err := experiment.Load(configPath)
			if err != nil {
				return err
			}
			baseConfig = cfg
		}
		if stepSize < 1 {
			return fmt.Errorf("step must be >= 1, got %d", stepSize)
		}
		initPrometheusMetrics()

		mux := http.NewServeMux()
		mux.HandleFunc("/", serveHome)
		mux.HandleFunc("/ws", handleWebSocket)
		mux.Handle("/metrics", metricsHandler())
		mux.HandleFunc("/quitquitquit", quitHandler)

		log.Info().Str("addr", addr).Str("experiment", baseConfig.Title).Msg("server starting")
		return http.ListenAndServe(addr, mux)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "experiment file (YAML or JSON); defaults to the built-in simple run")
	rootCmd.Flags().Int64Var(&stepSize, "step", 1, "simulated time units advanced per UI tick")
	rootCmd.Flags().DurationVar(&tickInterval, "tick", 500*time.Millisecond, "wall-clock time between UI ticks")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>manetsim</title>
<style>
body { font-family: monospace; margin: 2em; }
pre { background: #f4f4f4; padding: 1em; max-height: 40em; overflow: auto; }
</style>
</head>
<body>
<h1>LMS on a simulated MANET</h1>
<button onclick="send('start')">start</button>
<button onclick="send('pause')">pause</button>
<button onclick="send('reset')">reset</button>
<span id="status"></span>
<h2>Result</h2>
<pre id="result"></pre>
<h2>Log</h2>
<pre id="log"></pre>
<script>
const ws = new WebSocket("ws://" + location.host + "/ws");
function send(type) { ws.send(JSON.stringify({type: type})); }
ws.onmessage = (ev) => {
  const msg = JSON.parse(ev.data);
  switch (msg.type) {
  case "status":
    document.getElementById("status").textContent = msg.running ? "running" : "stopped";
    break;
  case "metrics":
    document.getElementById("result").textContent = JSON.stringify(msg.result, null, 2);
    break;
  case "log":
  case "error":
    const log = document.getElementById("log");
    log.textContent = (msg.message + "\n" + log.textContent).slice(0, 20000);
    break;
  }
};
</script>
</body>
</html>
`
