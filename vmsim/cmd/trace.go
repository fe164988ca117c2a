package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/sarchlab/vmkit/tracing"
	"github.com/spf13/cobra"
)

var traceCmd = &cobra.Command{
	Use:   "trace <recording.sqlite3>",
	Short: "Print the events of a recorded run.",
	Args:  cobra.ExactArgs(1),
	RunE:  printTrace,
}

func init() {
	f := traceCmd.Flags()
	f.Uint32("pid", 0, "Only show the events of this process.")
	f.String("pos", "", "Only show events at this hook position, "+
		"such as PageFault or FrameEvict.")
	f.Bool("failed", false, "Only show failed events.")
	f.Int("limit", 100, "Maximum number of events to print. 0 for all.")
	f.Int("offset", 0, "Number of events to skip.")

	rootCmd.AddCommand(traceCmd)
}

func printTrace(cmd *cobra.Command, args []string) error {
	var filter tracing.EventFilter
	flags := cmd.Flags()
	filter.PID, _ = flags.GetUint32("pid")
	filter.Pos, _ = flags.GetString("pos")
	filter.Failed, _ = flags.GetBool("failed")
	filter.Limit, _ = flags.GetInt("limit")
	filter.Offset, _ = flags.GetInt("offset")

	reader, err := tracing.OpenEventReader(args[0])
	if err != nil {
		return err
	}
	defer reader.Close()

	return writeTrace(cmd.Context(), reader, filter, cmd.OutOrStdout())
}

func writeTrace(
	ctx context.Context,
	reader *tracing.EventReader,
	filter tracing.EventFilter,
	w io.Writer,
) error {
	events, total, err := reader.Query(ctx, filter)
	if err != nil {
		return err
	}

	for _, e := range events {
		status := "ok"
		if !e.OK {
			status = "failed"
			if e.Error != "" {
				status += ": " + e.Error
			}
		}

		fmt.Fprintf(w, "%8d %-12s pid=%-5d vaddr=0x%-12x %-6s %-16s %s\n",
			e.Seq, e.Pos, e.PID, e.VAddr, e.Kind, e.What, status)
	}

	fmt.Fprintf(w, "%d of %d events\n", len(events), total)

	return nil
}
