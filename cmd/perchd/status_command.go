package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"perch/internal/store"
	"perch/internal/visit"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show component health and analysis backlog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			st, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			components, err := st.ComponentHealth(cmd.Context())
			if err != nil {
				return fmt.Errorf("read component health: %w", err)
			}
			pending, err := st.VisitsByStatus(cmd.Context(), visit.StatusAnalyzing)
			if err != nil {
				return fmt.Errorf("read pending visits: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(components) == 0 {
				fmt.Fprintln(out, "No component health recorded yet; is the daemon running?")
			} else {
				rows := make([][]string, 0, len(components))
				for _, c := range components {
					rows = append(rows, []string{
						c.Component,
						c.Status,
						formatTimestamp(c.UpdatedAt),
						orDash(c.Detail),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"COMPONENT", "STATUS", "UPDATED", "DETAIL"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				))
			}
			fmt.Fprintf(out, "Visits awaiting analysis: %d\n", len(pending))
			return nil
		},
	}
}

func newVisitsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "visits",
		Short: "List recent visits",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			st, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			visits, err := st.RecentVisits(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("read visits: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(visits) == 0 {
				fmt.Fprintln(out, "No visits recorded yet")
				return nil
			}

			rows := make([][]string, 0, len(visits))
			for _, v := range visits {
				rows = append(rows, []string{
					formatTimestamp(v.StartedAt),
					formatDuration(v.Duration()),
					string(v.Status),
					orDash(v.Species),
					orDash(v.Confidence),
					strconv.Itoa(len(v.Captures)),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"STARTED", "DURATION", "STATUS", "SPECIES", "CONFIDENCE", "CAPTURES"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of visits to list")
	return cmd
}

func newSpeciesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "species",
		Short: "Show visit counts per identified species",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			st, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			stats, err := st.SpeciesStats(cmd.Context())
			if err != nil {
				return fmt.Errorf("read species stats: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(stats) == 0 {
				fmt.Fprintln(out, "No species identified yet")
				return nil
			}

			rows := make([][]string, 0, len(stats))
			for _, s := range stats {
				rows = append(rows, []string{
					s.Species,
					strconv.Itoa(s.VisitCount),
					formatTimestamp(s.FirstSeen),
					formatTimestamp(s.LastSeen),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"SPECIES", "VISITS", "FIRST SEEN", "LAST SEEN"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
}
