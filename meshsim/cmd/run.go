package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"

	"github.com/pkg/browser"
	"github.com/pterm/pterm"
	"github.com/sarchlab/meshsim/config"
	"github.com/sarchlab/meshsim/datarecording"
	"github.com/sarchlab/meshsim/engine"
	"github.com/sarchlab/meshsim/monitoring"
	"github.com/sarchlab/meshsim/node"
	"github.com/sarchlab/meshsim/packet"
	"github.com/sarchlab/meshsim/sim"
	"github.com/sarchlab/meshsim/tracing"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation and print a summary.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			logger, closer, err := config.NewLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			s, err := runSimulation(ctx, cfg, logger)
			if err != nil {
				return err
			}

			return s.render(cmd.OutOrStdout())
		},
	}

	addTopologyFlags(runCmd)
	runCmd.Flags().Int("ticks", 1000, "number of ticks to simulate")
	runCmd.Flags().Bool("shuffle", false, "step the nodes in a random order")
	runCmd.Flags().String("topology", "", "YAML topology file")
	runCmd.Flags().Float64("traffic-rate", 0.01,
		"chance per node and tick of sending a data packet")
	runCmd.Flags().String("trace-db", "",
		"SQLite file, without extension, receiving packet traces")
	runCmd.Flags().Uint64("snapshot-every", 0,
		"record node states every that many ticks into the trace database")
	runCmd.Flags().Bool("monitor", false, "serve the monitoring web page")
	runCmd.Flags().Int("monitor-port", 0, "port of the monitoring server")
	runCmd.Flags().Bool("open-browser", false, "open the monitoring page")

	return runCmd
}

type summary struct {
	stats     engine.Stats
	nodes     int
	links     int
	leaders   int
	maxClock  float64
	arrived   uint64
	avgTicks  float64
	dropped   uint64
	traceFile string
}

// simulation is a run being assembled. The closers run in reverse order.
type simulation struct {
	cfg     *config.Config
	logger  *slog.Logger
	engine  *engine.Engine
	counter *tracing.CountTracer
	closers []func() error
}

func (s *simulation) onClose(f func() error) {
	s.closers = append(s.closers, f)
}

func (s *simulation) close() error {
	var firstErr error

	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func runSimulation(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
) (*summary, error) {
	s := &simulation{cfg: cfg, logger: logger}

	if err := s.build(); err != nil {
		_ = s.close()
		return nil, err
	}

	if err := s.attachRecording(); err != nil {
		_ = s.close()
		return nil, err
	}

	if err := s.attachMonitor(); err != nil {
		_ = s.close()
		return nil, err
	}

	logger.Info("simulation started",
		"nodes", len(s.engine.Topology().Nodes()),
		"ticks", cfg.Ticks,
		"seed", cfg.Seed)

	runErr := s.engine.Run(ctx, cfg.Ticks)
	if runErr != nil {
		logger.Warn("simulation interrupted",
			"tick", s.engine.CurrentTime(), "error", runErr)
	}

	sum := s.summarize()

	if err := s.close(); err != nil {
		return nil, err
	}

	return sum, nil
}

func (s *simulation) build() error {
	rng := sim.NewRand(s.cfg.Seed)

	topo, err := buildTopology(s.cfg.Topology, newFactory(s.cfg, rng, s.logger))
	if err != nil {
		return err
	}

	b := engine.MakeBuilder().
		WithTopology(topo).
		WithRand(rng).
		WithLogger(s.logger)

	if s.cfg.Shuffle {
		b = b.WithShuffledOrder()
	}

	if s.cfg.Traffic.Rate > 0 {
		b = b.WithTraffic(&engine.UniformTraffic{
			Rate: s.cfg.Traffic.Rate,
			Rand: rng,
		})
	}

	s.engine, err = b.Build()
	if err != nil {
		return err
	}

	s.counter = tracing.NewCountTracer(tracing.KindFilter(packet.TypeData.String()))
	tracing.CollectTrace(s.engine, s.counter)

	return nil
}

func (s *simulation) attachRecording() error {
	if s.cfg.Trace.Database == "" {
		return nil
	}

	recorder, err := datarecording.New(s.cfg.Trace.Database)
	if err != nil {
		return err
	}

	s.onClose(recorder.Close)

	run, err := datarecording.NewRunRecorder(recorder)
	if err != nil {
		return err
	}

	run.Start()
	run.Set("Seed", strconv.FormatUint(s.cfg.Seed, 10))
	run.Set("Ticks", strconv.Itoa(s.cfg.Ticks))
	run.Set("Nodes", strconv.Itoa(len(s.engine.Topology().Nodes())))
	s.onClose(run.End)

	tracer, err := tracing.NewDBTracer(recorder)
	if err != nil {
		return err
	}

	tracing.CollectTrace(s.engine, tracer)

	if s.cfg.Trace.SnapshotEvery > 0 {
		_, err := tracing.RecordSnapshots(s.engine, recorder, s.cfg.Trace.SnapshotEvery)
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *simulation) attachMonitor() error {
	if !s.cfg.Monitor.Enable {
		return nil
	}

	m := monitoring.NewMonitor().
		WithPortNumber(s.cfg.Monitor.Port).
		WithLogger(s.logger)
	m.RegisterEngine(s.engine)

	bar := m.CreateProgressBar("run", uint64(s.cfg.Ticks))
	s.engine.AcceptHook(bar)

	url, err := m.StartServer()
	if err != nil {
		return err
	}

	s.onClose(func() error {
		m.CompleteProgressBar(bar)
		return m.Stop(context.Background())
	})

	if s.cfg.Monitor.OpenBrowser {
		if err := browser.OpenURL(url); err != nil {
			s.logger.Warn("cannot open browser", "url", url, "error", err)
		}
	}

	return nil
}

func (s *simulation) summarize() *summary {
	topo := s.engine.Topology()
	sum := &summary{
		stats:     s.engine.Stats(),
		nodes:     len(topo.Nodes()),
		links:     len(topo.Links()),
		arrived:   s.counter.TaskCount(tracing.StepArrived),
		dropped:   s.counter.TaskCount(tracing.StepDropped),
		avgTicks:  s.counter.AverageTime(packet.TypeData.String()),
		traceFile: s.cfg.Trace.Database,
	}

	for _, n := range topo.Nodes() {
		mn, ok := n.(*node.Node)
		if !ok {
			continue
		}

		if mn.IsLeader() {
			sum.leaders++
		}

		sum.maxClock = max(sum.maxClock, mn.DistributedClock)
	}

	return sum
}

func (s *summary) render(w io.Writer) error {
	data := pterm.TableData{
		{"Metric", "Value"},
		{"Nodes", strconv.Itoa(s.nodes)},
		{"Links", strconv.Itoa(s.links)},
		{"Ticks", strconv.FormatUint(s.stats.Ticks, 10)},
		{"Packets sent", strconv.FormatUint(s.stats.Sent, 10)},
		{"Packets delivered", strconv.FormatUint(s.stats.Delivered, 10)},
		{"Packets lost", strconv.FormatUint(s.stats.Lost, 10)},
		{"Packets unroutable", strconv.FormatUint(s.stats.Unroutable, 10)},
		{"Packets in flight", strconv.Itoa(s.stats.InFlight)},
		{"Data packets arrived", strconv.FormatUint(s.arrived, 10)},
		{"Data packets dropped", strconv.FormatUint(s.dropped, 10)},
		{"Average data latency (ticks)", strconv.FormatFloat(s.avgTicks, 'f', 2, 64)},
		{"Leaders", strconv.Itoa(s.leaders)},
		{"Highest clock", strconv.FormatFloat(s.maxClock, 'f', -1, 64)},
	}

	if s.traceFile != "" {
		data = append(data, []string{"Trace database", s.traceFile + ".sqlite3"})
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, table)

	return err
}
