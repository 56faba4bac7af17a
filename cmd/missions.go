package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/roverlink/internal/store"
	"github.com/andresmejia3/roverlink/internal/utils"
)

var missionsCmd = &cobra.Command{
	Use:         "missions [id]",
	Short:       "List recorded missions, or the navigation events of one",
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{dbAnnotation: dbRequired},
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		if len(args) == 0 {
			missions, err := DB.ListMissions(ctx)
			if err != nil {
				utils.Die("Failed to list missions", err)
			}
			printMissions(os.Stdout, missions, time.Now())
			return
		}

		id, err := DB.FindMission(ctx, args[0])
		if err != nil {
			utils.Die("Failed to look up mission", err)
		}
		if id == uuid.Nil {
			utils.Die(fmt.Sprintf("No mission matches %q", args[0]), nil)
		}
		events, err := DB.MissionEvents(ctx, id)
		if err != nil {
			utils.Die("Failed to load mission events", err)
		}
		fmt.Printf("Mission %s\n\n", id)
		printEvents(os.Stdout, events)
	},
}

func init() {
	rootCmd.AddCommand(missionsCmd)
}

func printMissions(out io.Writer, missions []store.Mission, now time.Time) {
	if len(missions) == 0 {
		fmt.Fprintln(out, "No missions recorded.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tPEER\tPROFILE\tSTARTED\tDURATION\tFRAMES\tTRANSITIONS\tMANEUVERS")
	fmt.Fprintln(w, "--\t----\t-------\t-------\t--------\t------\t-----------\t---------")

	for _, m := range missions {
		end, running := now, true
		if m.EndedAt != nil {
			end, running = *m.EndedAt, false
		}
		duration := fmtTime(end.Sub(m.StartedAt).Seconds())
		if running {
			duration += " (running)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			m.ID.String()[:8], m.Peer, m.Profile, m.StartedAt.Local().Format("2006-01-02 15:04"),
			duration, m.Frames, m.Transitions, m.Maneuvers)
	}
	w.Flush()
}

func printEvents(out io.Writer, events []store.Event) {
	if len(events) == 0 {
		fmt.Fprintln(out, "No navigation events.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "T+\tFROM\tTO\tMANEUVER")
	fmt.Fprintln(w, "--\t----\t--\t--------")
	start := events[0].At
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", fmtTime(e.At.Sub(start).Seconds()), e.From, e.To, e.Maneuver)
	}
	w.Flush()
}

// fmtTime converts seconds to HH:MM:SS.
func fmtTime(seconds float64) string {
	duration := time.Duration(seconds * float64(time.Second))
	h := int(duration.Hours())
	m := int(duration.Minutes()) % 60
	s := int(duration.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
