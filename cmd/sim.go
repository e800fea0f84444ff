package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilianp07/grocerybot/app"
	"github.com/kilianp07/grocerybot/core/model"
	"github.com/kilianp07/grocerybot/pkg/export"
)

var simOpts struct {
	ticks  int
	chart  string
	csv    string
	manual bool
}

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run the control loop against the built-in simulator",
	Long: "Run the control loop for a fixed number of ticks against the headless simulator, " +
		"as fast as possible, and optionally export the run.",
	RunE: runSim,
}

func init() {
	f := simCmd.Flags()
	f.IntVar(&simOpts.ticks, "ticks", 1000, "number of control ticks")
	f.StringVar(&simOpts.chart, "chart", "", "write an HTML chart of the run")
	f.StringVar(&simOpts.csv, "csv", "", "write the trajectory as CSV")
	f.BoolVar(&simOpts.manual, "manual", false, "start in manual mode")
	rootCmd.AddCommand(simCmd)
}

func runSim(cmd *cobra.Command, args []string) error {
	if simOpts.ticks <= 0 {
		return fmt.Errorf("ticks must be positive")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Sim.Enabled = true
	cfg.MQTT.Enabled = false
	cfg.API.Enabled = false
	auto := !simOpts.manual
	cfg.Loop.Autonomous = &auto

	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	samples := make([]export.Sample, 0, simOpts.ticks)
	for i := 0; i < simOpts.ticks; i++ {
		svc.Step()
		st := svc.Sim.State()
		samples = append(samples, export.Sample{
			Step:   svc.Steps(),
			Pose:   st.Pose,
			Left:   st.Left,
			Right:  st.Right,
			Branch: svc.Scheduler.State().Branch,
		})
	}

	out := cmd.OutOrStdout()
	last := samples[len(samples)-1]
	state := svc.Scheduler.State()
	fmt.Fprintf(out, "ticks: %d (%s simulated)\n", svc.Steps(), svc.Sim.State().Time)
	fmt.Fprintf(out, "pose: %s theta %.3f\n", last.Pose.Position(), last.Pose.Theta)
	fmt.Fprintf(out, "tree: %s %s\n", state.Status, state.Branch)
	fmt.Fprintf(out, "patrol point: %d\n", svc.Tree.Patrol.Index())
	fmt.Fprintf(out, "objects identified: %d\n", len(svc.Objects.Objects()))

	if simOpts.csv != "" {
		trail := make([]model.Point, len(samples))
		for i, s := range samples {
			trail[i] = s.Pose.Position()
		}
		if err := writeFile(simOpts.csv, func(f *os.File) error { return export.WriteCSV(f, trail) }); err != nil {
			return err
		}
	}
	if simOpts.chart != "" {
		title := fmt.Sprintf("grocerybot sim, %d ticks", svc.Steps())
		if err := writeFile(simOpts.chart, func(f *os.File) error { return export.RunChart(f, title, samples) }); err != nil {
			return err
		}
	}
	return nil
}
