package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/streaks/app"
	"github.com/programme-lv/streaks/auth"
	"github.com/programme-lv/streaks/conf"
	"github.com/programme-lv/streaks/domain"
	"github.com/programme-lv/streaks/evalsrvc"
	"github.com/programme-lv/streaks/logger"
	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "streakctl",
		Short: "Operator CLI for the streak evaluation service",
	}

	var date string
	var triggerCmd = &cobra.Command{
		Use:   "trigger",
		Short: "Enqueue the daily evaluation for a date (default today)",
		Run: func(cmd *cobra.Command, args []string) {
			withApp(func(ctx context.Context, a *app.App) error {
				p := evalsrvc.TriggerParams{Date: domain.Today()}
				if date != "" {
					day, err := domain.ParseDay(date)
					if err != nil {
						return err
					}
					p.Date = day
				}
				if a.Config.Broker == "memory" {
					slog.Warn("memory broker: jobs enqueued here are never picked up by the server")
				}
				summary, err := a.Eval.TriggerDaily(ctx, p)
				if err != nil {
					return err
				}
				return printJson(summary)
			})
		},
	}
	triggerCmd.Flags().StringVarP(&date, "date", "d", "", "Evaluation date in YYYY-MM-DD")

	var purgeCmd = &cobra.Command{
		Use:   "purge-jobs",
		Short: "Remove finished job records past their retention",
		Run: func(cmd *cobra.Command, args []string) {
			withApp(func(ctx context.Context, a *app.App) error {
				n, err := a.Queue.Purge(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("purged %d job records\n", n)
				return nil
			})
		},
	}

	var jobCmd = &cobra.Command{
		Use:   "job [id]",
		Short: "Show the ledger record of a job",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withApp(func(ctx context.Context, a *app.App) error {
				rec, err := a.Queue.Status(ctx, args[0])
				if err != nil {
					return err
				}
				if rec == nil {
					return fmt.Errorf("job %s not found", args[0])
				}
				return printJson(rec)
			})
		},
	}

	var userID, username string
	var admin bool
	var ttl time.Duration
	var tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Issue a signed JWT for calling the HTTP API",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := conf.Load()
			if err != nil {
				log.Fatal(err)
			}
			id, err := uuid.Parse(userID)
			if err != nil {
				log.Fatalf("invalid user id: %v", err)
			}
			var scopes []string
			if admin {
				scopes = append(scopes, auth.ScopeAdmin)
			}
			token, err := auth.GenerateJWT(username, "", id, scopes, []byte(cfg.JwtKey), ttl)
			if err != nil {
				log.Fatal(err)
			}
			fmt.Println(token)
		},
	}
	tokenCmd.Flags().StringVarP(&userID, "user-id", "u", "", "User id (required)")
	tokenCmd.Flags().StringVarP(&username, "username", "n", "operator", "Username claim")
	tokenCmd.Flags().BoolVar(&admin, "admin", false, "Grant the admin scope")
	tokenCmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	tokenCmd.MarkFlagRequired("user-id")

	rootCmd.AddCommand(triggerCmd, purgeCmd, jobCmd, tokenCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func withApp(run func(ctx context.Context, a *app.App) error) {
	cfg, err := conf.Load()
	if err != nil {
		log.Fatal(err)
	}
	slog.SetDefault(logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	err = run(ctx, a)
	a.Close()
	if err != nil {
		log.Fatal(err)
	}
}

func printJson(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
