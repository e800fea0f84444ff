package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/grocerybot/app"
)

var topicsJSON bool

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Print the bus wiring of the configured robot",
	RunE:  runTopics,
}

func init() {
	topicsCmd.Flags().BoolVar(&topicsJSON, "json", false, "print JSON")
	rootCmd.AddCommand(topicsCmd)
}

func runTopics(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.MQTT.Enabled = false
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	graph := svc.Bus.Graph()
	out := cmd.OutOrStdout()
	if topicsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(graph)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOPIC\tTYPE\tPUBLISHERS\tSUBSCRIBERS")
	for _, t := range graph {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Name, t.Type, strings.Join(t.Publishers, ","), strings.Join(t.Subscribers, ","))
	}
	return tw.Flush()
}
