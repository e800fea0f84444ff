package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilianp07/grocerybot/core/grid"
	"github.com/kilianp07/grocerybot/core/model"
	"github.com/kilianp07/grocerybot/core/planner"
	"github.com/kilianp07/grocerybot/infra/logger"
	"github.com/kilianp07/grocerybot/infra/maps"
	"github.com/kilianp07/grocerybot/pkg/export"
)

var planOpts struct {
	from, to model.Point
	mapPath  string
	png      string
	csv      string
	json     bool
	seed     int64
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan a path on a map and export it",
	RunE:  runPlan,
}

func init() {
	f := planCmd.Flags()
	f.Var(newPointValue(&planOpts.from), "from", "start position")
	f.Var(newPointValue(&planOpts.to), "to", "goal position")
	f.StringVar(&planOpts.mapPath, "map", "", "raster map (.npy or .json); overrides map.path")
	f.StringVar(&planOpts.png, "png", "", "write a PNG rendering of the path")
	f.StringVar(&planOpts.csv, "csv", "", "write the waypoints as CSV")
	f.BoolVar(&planOpts.json, "json", false, "print the waypoints as JSON")
	f.Int64Var(&planOpts.seed, "seed", 0, "random seed; overrides planner.seed when non-zero")
	_ = planCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.Map.Path
	if planOpts.mapPath != "" {
		path = planOpts.mapPath
	}
	var raw *grid.Grid
	if path != "" {
		if raw, err = maps.LoadGrid(path, cfg.Grid.Threshold); err != nil {
			return err
		}
	}
	m, err := grid.NewMap(cfg.Grid, raw)
	if err != nil {
		return err
	}
	pcfg := cfg.Planner
	if planOpts.seed != 0 {
		pcfg.Seed = planOpts.seed
	}
	p, err := planner.New(pcfg, m, planner.WithLogger(cfg.Logging.Options().New("planner")))
	if err != nil {
		return err
	}
	plan, err := p.Plan(planOpts.from, planOpts.to)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if planOpts.json {
		if err := export.WriteJSON(out, plan.Waypoints); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "%d waypoints after %d iterations (%d nodes)\n", len(plan.Waypoints), plan.Search.Iterations, plan.Search.Nodes)
		for i, wp := range plan.Waypoints {
			fmt.Fprintf(out, "%3d  %s\n", i, wp)
		}
	}
	if planOpts.csv != "" {
		if err := writeFile(planOpts.csv, func(f *os.File) error { return export.WriteCSV(f, plan.Waypoints) }); err != nil {
			return err
		}
	}
	if planOpts.png != "" {
		pp := export.PathPlot{
			Grid:      m.Raw(),
			Transform: m.Transform(),
			Start:     planOpts.from,
			Goal:      planOpts.to,
			Raw:       plan.Raw,
			Waypoints: plan.Waypoints,
		}
		if err := writeFile(planOpts.png, func(f *os.File) error { return export.PlotPath(f, pp, 6) }); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, fn func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.New("cli").Infof("wrote %s", path)
	return nil
}
