package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edurpg/edurpg/core/market"
)

// Maintenance jobs are meant to be scheduled by cron.

func (cli *commandLine) streaksCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "streaks", Short: "Streak maintenance"}
	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Reset the streaks of users who missed a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.report("streaks reset", func(ctx context.Context) (int, error) {
				return cli.svc.Streaks.ResetBroken(ctx)
			})(cmd, args)
		},
	})
	return cmd
}

func (cli *commandLine) marketCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "market", Short: "Market maintenance"}
	cmd.AddCommand(&cobra.Command{
		Use:   "expire",
		Short: "Expire listings past their expiry date",
		RunE: cli.report("listings expired", func(ctx context.Context) (int, error) {
			return cli.svc.Market.ExpireListings(ctx)
		}),
	})

	var period string
	snapshot := &cobra.Command{
		Use:   "snapshot",
		Short: "Record price statistics of every traded item for a period",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := market.Period(strings.ToUpper(strings.TrimSpace(period)))
			return cli.report("price snapshots recorded", func(ctx context.Context) (int, error) {
				return cli.svc.Market.SnapshotPrices(ctx, p)
			})(cmd, args)
		},
	}
	snapshot.Flags().StringVar(&period, "period", string(market.PeriodDaily), "DAILY, WEEKLY or MONTHLY")
	cmd.AddCommand(snapshot)
	return cmd
}

func (cli *commandLine) leaderboardCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "leaderboard", Short: "Leaderboard maintenance"}
	cmd.AddCommand(&cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the leaderboard cache from the database",
		RunE: cli.report("users ranked", func(ctx context.Context) (int, error) {
			return cli.svc.Leaderboard.Rebuild(ctx)
		}),
	})
	return cmd
}

func (cli *commandLine) notificationsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "notifications", Short: "Notification maintenance"}
	var days int
	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete read notifications older than --days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.report("notifications deleted", func(ctx context.Context) (int, error) {
				return cli.svc.Notifications.Cleanup(ctx, days)
			})(cmd, args)
		},
	}
	cleanup.Flags().IntVar(&days, "days", 90, "age in days")
	cmd.AddCommand(cleanup)
	return cmd
}

// report runs job and prints the number of affected records.
func (cli *commandLine) report(what string, job func(ctx context.Context) (int, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		n, err := job(ctx)
		if err != nil {
			return err
		}
		cli.printf("%d %s\n", n, what)
		return nil
	}
}
