// README: flows command; prints the stage and tracking flows per mode and intent.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"repairtrack/internal/modules/request"
)

var (
	modes   = []request.ServiceMode{request.ModePickup, request.ModeServiceCenter}
	intents = []request.Intent{request.IntentQuote, request.IntentRepair}
)

// FlowsCmd returns the flows command
func FlowsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flows",
		Short: "Print stage and tracking flows",
		Long: `Print the ordered stage flow for every service mode and intent, and the
customer tracking flow for every mode.

Job creation stages are marked with *, the device presence threshold with ▲.

Examples:
  lifecyclectl flows
  lifecyclectl flows --mode pickup --intent quote`,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, _ := cmd.Flags().GetString("mode")
			intent, _ := cmd.Flags().GetString("intent")
			printFlows(cmd.OutOrStdout(), mode, intent)
			return nil
		},
	}

	cmd.Flags().String("mode", "", "Only this service mode (pickup, service_center)")
	cmd.Flags().String("intent", "", "Only this intent (quote, repair)")

	return cmd
}

func printFlows(w io.Writer, onlyMode, onlyIntent string) {
	for _, mode := range modes {
		if onlyMode != "" && string(mode) != onlyMode {
			continue
		}
		for _, intent := range intents {
			if onlyIntent != "" && string(intent) != onlyIntent {
				continue
			}
			fmt.Fprintf(w, "%s stages (%s/%s)\n", color.New(color.FgHiBlue).Sprint("▸"), mode, intent)
			parts := make([]string, 0, 10)
			for _, s := range request.StageFlow(mode, intent) {
				if request.IsJobCreationStage(s) {
					parts = append(parts, color.New(color.FgYellow).Sprintf("%s*", s))
					continue
				}
				parts = append(parts, string(s))
			}
			fmt.Fprintf(w, "  %s\n", strings.Join(parts, " → "))
		}

		fmt.Fprintf(w, "%s tracking (%s)\n", color.New(color.FgHiBlue).Sprint("▸"), mode)
		threshold := request.DeviceThreshold(mode)
		parts := make([]string, 0, 12)
		for _, s := range request.TrackingFlow(mode) {
			if s == threshold {
				parts = append(parts, color.New(color.FgCyan).Sprintf("%s▲", s))
				continue
			}
			parts = append(parts, string(s))
		}
		fmt.Fprintf(w, "  %s\n\n", strings.Join(parts, " → "))
	}
}
