package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/sarchlab/meshsim/config"
	"github.com/sarchlab/meshsim/link"
	"github.com/sarchlab/meshsim/sim"
	"github.com/sarchlab/meshsim/topology"
	"github.com/spf13/cobra"
)

func newTopologyCmd() *cobra.Command {
	topologyCmd := &cobra.Command{
		Use:   "topology",
		Short: "Generate and inspect topology files.",
	}

	topologyCmd.AddCommand(newTopologyGenerateCmd())
	topologyCmd.AddCommand(newTopologyShowCmd())

	return topologyCmd
}

func newTopologyGenerateCmd() *cobra.Command {
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a topology and write it as YAML.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			cfg.Topology.File = ""

			f := newFactory(cfg, sim.NewRand(cfg.Seed), nil)

			topo, err := buildTopology(cfg.Topology, f)
			if err != nil {
				return err
			}

			out, _ := cmd.Flags().GetString("output")
			if out == "" || out == "-" {
				return topo.Save(cmd.OutOrStdout())
			}

			file, err := os.Create(out)
			if err != nil {
				return err
			}
			defer file.Close()

			return topo.Save(file)
		},
	}

	addTopologyFlags(generateCmd)
	generateCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")

	return generateCmd
}

func newTopologyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show FILE",
		Short: "Print the nodes and links of a topology file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := topology.MakeFactory(sim.NewRand(config.Default().Seed))

			topo, err := topology.LoadFile(args[0], f)
			if err != nil {
				return err
			}

			return renderTopology(cmd.OutOrStdout(), topo)
		},
	}
}

func renderTopology(w io.Writer, topo *topology.Topology) error {
	data := pterm.TableData{
		{"A", "B", "Quality", "Bandwidth", "Channel", "Latency"},
	}

	for _, e := range topo.Links() {
		row := []string{string(e.A), string(e.B), "", "", "", ""}
		if l, ok := e.Link.(*link.Link); ok {
			row[2] = strconv.FormatFloat(l.Quality, 'f', -1, 64)
			row[3] = strconv.Itoa(l.Bandwidth)
			row[4] = strconv.Itoa(l.Channel)
			row[5] = strconv.Itoa(l.Latency)
		}

		data = append(data, row)
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "%d nodes, %d links\n%s\n",
		len(topo.Nodes()), len(topo.Links()), table)

	return err
}
