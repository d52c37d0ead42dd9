package cmd

import (
	"fmt"
	"log/slog"

	"github.com/sarchlab/meshsim/config"
	"github.com/sarchlab/meshsim/sim"
	"github.com/sarchlab/meshsim/topology"
	"github.com/spf13/cobra"
)

// loadConfig loads the configuration and applies the flags that were set on
// the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	override := func(name string, apply func()) {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			apply()
		}
	}

	override("log-level", func() { cfg.Log.Level, _ = flags.GetString("log-level") })
	override("seed", func() { cfg.Seed, _ = flags.GetUint64("seed") })
	override("ticks", func() { cfg.Ticks, _ = flags.GetInt("ticks") })
	override("shuffle", func() { cfg.Shuffle, _ = flags.GetBool("shuffle") })
	override("topology", func() { cfg.Topology.File, _ = flags.GetString("topology") })
	override("shape", func() { cfg.Topology.Shape, _ = flags.GetString("shape") })
	override("nodes", func() { cfg.Topology.Nodes, _ = flags.GetInt("nodes") })
	override("width", func() { cfg.Topology.Width, _ = flags.GetInt("width") })
	override("height", func() { cfg.Topology.Height, _ = flags.GetInt("height") })
	override("degree", func() { cfg.Topology.Degree, _ = flags.GetInt("degree") })
	override("random-links", func() {
		cfg.Topology.RandomLinks, _ = flags.GetBool("random-links")
	})
	override("traffic-rate", func() { cfg.Traffic.Rate, _ = flags.GetFloat64("traffic-rate") })
	override("trace-db", func() { cfg.Trace.Database, _ = flags.GetString("trace-db") })
	override("snapshot-every", func() {
		cfg.Trace.SnapshotEvery, _ = flags.GetUint64("snapshot-every")
	})
	override("monitor", func() { cfg.Monitor.Enable, _ = flags.GetBool("monitor") })
	override("monitor-port", func() { cfg.Monitor.Port, _ = flags.GetInt("monitor-port") })
	override("open-browser", func() {
		cfg.Monitor.OpenBrowser, _ = flags.GetBool("open-browser")
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func addTopologyFlags(cmd *cobra.Command) {
	cmd.Flags().Uint64("seed", 1, "seed of every random source")
	cmd.Flags().String("shape", config.ShapeRandom,
		"generated topology: line, ring, grid or random")
	cmd.Flags().Int("nodes", 16, "number of nodes of line, ring and random shapes")
	cmd.Flags().Int("width", 4, "width of the grid shape")
	cmd.Flags().Int("height", 4, "height of the grid shape")
	cmd.Flags().Int("degree", 3, "average degree of the random shape")
	cmd.Flags().Bool("random-links", false, "draw link quality and latency")
}

func newFactory(cfg *config.Config, rng sim.Rand, logger *slog.Logger) topology.Factory {
	f := topology.MakeFactory(rng)
	f.NodeBuilder = f.NodeBuilder.WithLogger(logger)
	f.RandomLinks = cfg.Topology.RandomLinks

	return f
}

func buildTopology(c config.TopologyConfig, f topology.Factory) (*topology.Topology, error) {
	if c.File != "" {
		return topology.LoadFile(c.File, f)
	}

	switch c.Shape {
	case config.ShapeLine:
		return topology.Line(c.Nodes, f)
	case config.ShapeRing:
		return topology.Ring(c.Nodes, f)
	case config.ShapeGrid:
		return topology.Grid(c.Width, c.Height, f)
	case config.ShapeRandom:
		return topology.RandomMesh(c.Nodes, c.Degree, f)
	default:
		return nil, fmt.Errorf("%w: unknown topology shape %q",
			config.ErrInvalidConfig, c.Shape)
	}
}
