// Package monitoring turns a running simulation into a web server that can
// be inspected and controlled.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/sarchlab/meshsim/engine"
	"github.com/sarchlab/meshsim/monitoring/web"
	"github.com/sarchlab/meshsim/node"
	"github.com/sarchlab/meshsim/packet"
	"github.com/sarchlab/meshsim/sim"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// Monitor can turn a simulation into a server and allows external monitoring
// controlling of the simulation.
type Monitor struct {
	engine     *engine.Engine
	portNumber int
	logger     *slog.Logger

	hub      *hub
	hubOnce  sync.Once
	server   *http.Server
	ctx      context.Context
	cancel   context.CancelFunc
	runGroup sync.WaitGroup

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &Monitor{
		logger: slog.Default(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		m.logger.Warn("port number not allowed, using a random port instead",
			"port", portNumber)

		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithLogger sets the logger of the monitor.
func (m *Monitor) WithLogger(logger *slog.Logger) *Monitor {
	m.logger = logger
	return m
}

// RegisterEngine registers the engine that is used in the simulation. A frame
// is pushed to the stream clients after every tick.
func (m *Monitor) RegisterEngine(e *engine.Engine) {
	m.engine = e
	e.AcceptHook(sim.HookFunc(m.afterTick))
}

func (m *Monitor) afterTick(ctx sim.HookCtx) {
	if ctx.Pos != engine.HookPosAfterTick {
		return
	}

	h := m.streamHub()
	if h.numClients() == 0 {
		return
	}

	data, err := m.encodeFrame()
	if err != nil {
		m.logger.Error("cannot encode frame", "error", err)
		return
	}

	h.broadcast(data)
}

// encodeFrame returns the JSON frame of the current tick, or nil if no engine
// is registered.
func (m *Monitor) encodeFrame() ([]byte, error) {
	if m.engine == nil {
		return nil, nil
	}

	var f frame
	m.engine.Inspect(func() { f = m.frame() })

	return json.Marshal(f)
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        sim.GetIDGenerator().Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

func (m *Monitor) streamHub() *hub {
	m.hubOnce.Do(func() {
		m.hub = newHub(m.logger, m.encodeFrame)
	})

	return m.hub
}

// Handler returns the routes of the monitor.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pauseEngine)
	r.HandleFunc("/api/continue", m.continueEngine)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/run", m.run)
	r.HandleFunc("/api/tick", m.tick)
	r.HandleFunc("/api/stats", m.stats)
	r.HandleFunc("/api/list_nodes", m.listNodes)
	r.HandleFunc("/api/node/{mac}", m.nodeDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/links", m.listLinks)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.HandleFunc("/api/stream", m.streamHub().handle)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts the monitor as a web server. It returns the URL the
// server listens on.
func (m *Monitor) StartServer() (string, error) {
	listener, err := net.Listen("tcp", "localhost:"+strconv.Itoa(m.portNumber))
	if err != nil {
		return "", fmt.Errorf("start monitor: %w", err)
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)

	m.server = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("monitor stopped", "error", err)
		}
	}()

	m.logger.Info("monitoring simulation", "url", url)

	return url, nil
}

// Stop shuts the server down and disconnects the stream clients. A paused
// engine is continued so that runs started from the server can return.
func (m *Monitor) Stop(ctx context.Context) error {
	m.cancel()

	var err error
	if m.server != nil {
		err = m.server.Shutdown(ctx)
	}

	m.streamHub().close()

	if m.engine != nil {
		m.engine.Continue()
	}

	m.runGroup.Wait()

	return err
}

func (m *Monitor) engineOr503(w http.ResponseWriter) bool {
	if m.engine != nil {
		return true
	}

	http.Error(w, "no engine registered", http.StatusServiceUnavailable)

	return false
}

func (m *Monitor) pauseEngine(w http.ResponseWriter, _ *http.Request) {
	if !m.engineOr503(w) {
		return
	}

	m.engine.Pause()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) continueEngine(w http.ResponseWriter, _ *http.Request) {
	if !m.engineOr503(w) {
		return
	}

	m.engine.Continue()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	if !m.engineOr503(w) {
		return
	}

	fmt.Fprintf(w, "{\"now\":%d}", m.engine.CurrentTime())
}

func (m *Monitor) run(w http.ResponseWriter, r *http.Request) {
	if !m.engineOr503(w) {
		return
	}

	ticks, err := strconv.Atoi(r.URL.Query().Get("ticks"))
	if err != nil || ticks <= 0 {
		http.Error(w, "ticks must be a positive number", http.StatusBadRequest)
		return
	}

	m.runGroup.Add(1)

	go func() {
		defer m.runGroup.Done()

		if err := m.engine.Run(m.ctx, ticks); err != nil &&
			!errors.Is(err, context.Canceled) {
			m.logger.Error("run failed", "error", err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

func (m *Monitor) tick(w http.ResponseWriter, _ *http.Request) {
	if !m.engineOr503(w) {
		return
	}

	if m.engine.IsPaused() {
		http.Error(w, "engine is paused", http.StatusConflict)
		return
	}

	m.engine.Tick()
	fmt.Fprintf(w, "{\"now\":%d}", m.engine.CurrentTime())
}

func (m *Monitor) stats(w http.ResponseWriter, _ *http.Request) {
	if !m.engineOr503(w) {
		return
	}

	writeJSON(w, m.engine.Stats())
}

func (m *Monitor) listNodes(w http.ResponseWriter, _ *http.Request) {
	if !m.engineOr503(w) {
		return
	}

	names := []string{}
	m.engine.Inspect(func() {
		for _, n := range m.engine.Topology().Nodes() {
			names = append(names, n.Name())
		}
	})

	writeJSON(w, names)
}

func (m *Monitor) nodeDetails(w http.ResponseWriter, r *http.Request) {
	if !m.engineOr503(w) {
		return
	}

	m.serializeNode(w, mux.Vars(r)["mac"], nil)
}

type fieldReq struct {
	NodeName  string `json:"node_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	req := fieldReq{}

	err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !m.engineOr503(w) {
		return
	}

	m.serializeNode(w, req.NodeName, strings.Split(req.FieldName, "."))
}

// serializeNode dumps a node, or one of its fields if entry is set. The node
// is serialized between ticks and written out afterwards.
func (m *Monitor) serializeNode(
	w http.ResponseWriter,
	name string,
	entry []string,
) {
	buf := bytes.NewBuffer(nil)
	status := http.StatusOK
	msg := ""

	m.engine.Inspect(func() {
		n, ok := m.engine.Topology().Node(packet.MAC(name))
		if !ok {
			status, msg = http.StatusNotFound, "Node not found"
			return
		}

		serializer := goseth.NewSerializer()
		serializer.SetRoot(n)
		serializer.SetMaxDepth(1)

		if entry != nil {
			if err := serializer.SetEntryPoint(entry); err != nil {
				status, msg = http.StatusBadRequest, err.Error()
				return
			}
		}

		dieOnErr(serializer.Serialize(buf))
	})

	if status != http.StatusOK {
		http.Error(w, msg, status)
		return
	}

	_, err := w.Write(buf.Bytes())
	dieOnErr(err)
}

type linkRsp struct {
	A         string `json:"a"`
	B         string `json:"b"`
	Channel   int    `json:"channel"`
	InTransit int    `json:"in_transit"`
}

func (m *Monitor) listLinks(w http.ResponseWriter, _ *http.Request) {
	if !m.engineOr503(w) {
		return
	}

	links := []linkRsp{}
	m.engine.Inspect(func() {
		for _, e := range m.engine.Topology().Links() {
			links = append(links, linkRsp{
				A:         string(e.A),
				B:         string(e.B),
				Channel:   e.Link.ChannelID(),
				InTransit: len(e.Link.Transits()),
			})
		}
	})

	writeJSON(w, links)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	writeJSON(w, m.progressBars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

type nodeFrame struct {
	MAC                string  `json:"mac"`
	Name               string  `json:"name"`
	Color              string  `json:"color"`
	DistributedClock   float64 `json:"distributed_clock"`
	DistanceFromLeader float64 `json:"distance_from_leader"`
	Neighbours         int     `json:"neighbours"`
	QueuedPackets      int     `json:"queued_packets"`
}

type frame struct {
	Now   sim.VTimeInCycle `json:"now"`
	Stats engine.Stats     `json:"stats"`
	Nodes []nodeFrame      `json:"nodes"`
}

type snapshotter interface {
	Snapshot() node.State
}

func (m *Monitor) frame() frame {
	f := frame{
		Now:   m.engine.CurrentTime(),
		Stats: m.engine.Stats(),
		Nodes: []nodeFrame{},
	}

	for _, n := range m.engine.Topology().Nodes() {
		s, ok := n.(snapshotter)
		if !ok {
			continue
		}

		state := s.Snapshot()
		f.Nodes = append(f.Nodes, nodeFrame{
			MAC:                string(state.MAC),
			Name:               state.Name,
			Color:              state.Color,
			DistributedClock:   state.DistributedClock,
			DistanceFromLeader: state.DistanceFromLeader,
			Neighbours:         len(state.Neighbours),
			QueuedPackets:      state.QueuedPackets,
		})
	}

	return f
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
