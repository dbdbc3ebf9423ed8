package main

import (
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/livinlefevreloca/p2g/internal/cadence"
	"github.com/livinlefevreloca/p2g/internal/errors"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all available Pingdom checks and transaction monitors",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, needs{})
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		checks, err := a.pingdom.ListChecks(ctx)
		if err != nil {
			return errors.Wrap(err, "list checks")
		}
		tms, err := a.pingdom.ListTransactions(ctx)
		if err != nil {
			return errors.Wrap(err, "list transaction monitors")
		}

		data := pterm.TableData{{"Type", "ID", "Name", "Status"}}
		for _, e := range append(checks, tms...) {
			data = append(data, []string{e.Kind.String(), strconv.FormatInt(e.ID, 10), e.Name, e.Status})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

var probesCmd = &cobra.Command{
	Use:   "probes",
	Short: "List all Pingdom probes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, needs{})
		if err != nil {
			return err
		}
		defer a.Close()

		probes, err := a.pingdom.ListProbes(cmd.Context())
		if err != nil {
			return errors.Wrap(err, "list probes")
		}

		data := pterm.TableData{{"ID", "Country ISO", "City"}}
		for _, p := range probes {
			data = append(data, []string{strconv.FormatInt(p.ID, 10), p.CountryISO, p.City})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

var adviceCmd = &cobra.Command{
	Use:   "advice",
	Short: "Estimate daily API usage against the Pingdom quota",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, needs{})
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		checks, err := a.pingdom.ListChecks(ctx)
		if err != nil {
			return errors.Wrap(err, "list checks")
		}
		tms, err := a.pingdom.ListTransactions(ctx)
		if err != nil {
			return errors.Wrap(err, "list transaction monitors")
		}

		expr := a.cfg.Sync.Schedule
		if cmd.Flags().Changed("schedule") {
			expr, _ = cmd.Flags().GetString("schedule")
		}
		schedule, err := cadence.Parse(expr)
		if err != nil {
			return err
		}

		adv := NewAdvice(len(checks)+len(tms), schedule, time.Now())
		pterm.Info.Printfln("You have %d monitored checks. Given a %d/day API limit:", adv.Monitored, DailyCallLimit)
		if adv.Fits() {
			pterm.Success.Printfln("%q (%d runs today): %d/day - works", adv.Schedule, adv.RunsPerDay, adv.DailyCalls)
		} else {
			pterm.Warning.Printfln("%q (%d runs today): %d/day - won't work", adv.Schedule, adv.RunsPerDay, adv.DailyCalls)
		}
		return nil
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Store the current catalog of checks, transaction monitors and probes in the manifest",
	Long: `Store the current catalog in the manifest. Watermarks of entities that
still exist are kept; removed entities are dropped with their watermarks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, needs{store: true})
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.orchestrator().RefreshCatalog(cmd.Context())
		if err != nil {
			return err
		}
		pterm.Success.Printfln("The manifest is updated with %d checks, %d TMs, %d probes.",
			summary.Checks, summary.Transactions, summary.Probes)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Push everything new since the last update to Graphite",
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, _ := cmd.Flags().GetBool("summary")

		a, err := newApp(cmd, needs{graphite: true, store: true})
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.orchestrator().Sync(cmd.Context(), nil, a.syncOptions(summary))
		if report != nil {
			printReport(report)
		}
		return err
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"updateCurrentStatus"},
	Short:   "Push the current up/down status of every check and TM to Graphite",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, needs{graphite: true})
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.orchestrator().PublishCurrentStatus(cmd.Context())
		if err != nil {
			return err
		}
		pterm.Success.Printfln("%d metrics sent to Graphite.", n)
		return nil
	},
}

func init() {
	adviceCmd.Flags().String("schedule", "", "Cron expression to estimate instead of [sync] schedule")
	updateCmd.Flags().Bool("summary", false, "Send only summaries (no per-probe results)")
}
