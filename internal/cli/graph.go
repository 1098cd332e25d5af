package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/georally/internal/model"
	"github.com/mcoot/georally/internal/services/geo"
)

// datasetFlags selects the country dataset for offline commands
type datasetFlags struct {
	countries string
	coastal   string
}

func (d *datasetFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&d.countries, "countries", "", "Countries JSON file (default: embedded dataset)")
	cmd.PersistentFlags().StringVar(&d.coastal, "coastal", "", "Coastal countries JSON file (default: embedded dataset)")
}

func (d *datasetFlags) load() (*geo.Graph, error) {
	switch {
	case d.countries == "" && d.coastal == "":
		return geo.Default()
	case d.countries == "" || d.coastal == "":
		return nil, errors.New("--countries and --coastal must be given together")
	default:
		return geo.LoadFiles(d.countries, d.coastal)
	}
}

func requireCountries(g *geo.Graph, names ...string) error {
	for _, name := range names {
		if !g.Has(name) {
			return fmt.Errorf("%q: %w", name, model.ErrUnknownCountry)
		}
	}
	return nil
}

func newGraphCmd() *cobra.Command {
	var dataset datasetFlags

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Query the country graph offline",
	}
	dataset.register(cmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "neighbours <country>",
		Short: "List the countries sharing a land border",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := dataset.load()
			if err != nil {
				return err
			}
			if err := requireCountries(g, args[0]); err != nil {
				return err
			}

			output(cmd).Print(NeighboursResult{Country: args[0], Neighbours: g.NeighboursOf(args[0])})
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "coastal <country>",
		Short: "Report whether a country has a coastline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := dataset.load()
			if err != nil {
				return err
			}
			if err := requireCountries(g, args[0]); err != nil {
				return err
			}

			output(cmd).Print(CoastalResult{Country: args[0], Coastal: g.IsCoastal(args[0])})
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path <from> <to>",
		Short: "Show a shortest land route",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := dataset.load()
			if err != nil {
				return err
			}
			if err := requireCountries(g, args...); err != nil {
				return err
			}

			path := g.ShortestPath(args[0], args[1])
			output(cmd).Print(PathResult{From: args[0], To: args[1], Reachable: path != nil, Path: path})
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reach <from> <to>",
		Short: "Report whether two countries are connected by land",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := dataset.load()
			if err != nil {
				return err
			}
			if err := requireCountries(g, args...); err != nil {
				return err
			}

			out := output(cmd)
			reachable := g.CanReachByLand(args[0], args[1])
			if cfg.Output == "json" {
				out.Print(PathResult{From: args[0], To: args[1], Reachable: reachable})
				return nil
			}
			if reachable {
				out.PrintMessage(fmt.Sprintf("%s can reach %s by land", args[0], args[1]))
			} else {
				out.PrintMessage(fmt.Sprintf("%s cannot reach %s by land", args[0], args[1]))
			}
			return nil
		},
	})

	return cmd
}
