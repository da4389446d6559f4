package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/darb-group/leadflow/internal/enrich"
	"github.com/darb-group/leadflow/internal/model"
	"github.com/darb-group/leadflow/internal/progress"
)

var (
	enrichLimit        int
	enrichRevealEmails bool
	enrichRevealPhones bool
	enrichWebhookURL   string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Drain the unprocessed backlog through bulk enrichment",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		limit := enrichLimit
		if limit <= 0 {
			limit = cfg.Pipeline.EnrichLimit
		}
		webhookURL := enrichWebhookURL
		if webhookURL == "" {
			webhookURL = cfg.Pipeline.WebhookURL
		}

		run, err := env.Store.CreateRun(ctx, model.RunKindEnrich)
		if err != nil {
			return eris.Wrap(err, "create run")
		}

		engine := enrich.New(env.Client, env.Store, enrich.Config{
			Reporter: progress.Run(ctx, env.Store, run.ID, progress.Logger("enrich")),
		})

		summary, runErr := engine.ProcessUnprocessed(ctx, limit, enrich.Options{
			RevealPersonalEmails: enrichRevealEmails,
			RevealPhoneNumbers:   enrichRevealPhones,
			WebhookURL:           webhookURL,
		})
		if runErr != nil {
			if err := env.Store.FailRun(ctx, run.ID, runErr.Error()); err != nil {
				zap.L().Warn("failed to record run failure", zap.Error(err))
			}
			return eris.Wrap(runErr, "enrichment run")
		}
		if err := env.Store.CompleteRun(ctx, run.ID, summary); err != nil {
			zap.L().Warn("failed to record run completion", zap.Error(err))
		}

		zap.L().Info("enrichment complete",
			zap.String("run_id", run.ID),
			zap.Int("considered", summary.TotalProcessed),
			zap.Int("companies_created", summary.CompaniesCreated),
			zap.Int("contacts_created", summary.ContactsCreated),
			zap.Int("errors", len(summary.Errors)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 0, "max unprocessed rows to consider (default from config)")
	enrichCmd.Flags().BoolVar(&enrichRevealEmails, "reveal-emails", true, "ask the provider to reveal personal emails")
	enrichCmd.Flags().BoolVar(&enrichRevealPhones, "reveal-phones", false, "ask the provider to reveal phone numbers (requires --webhook-url)")
	enrichCmd.Flags().StringVar(&enrichWebhookURL, "webhook-url", "", "webhook URL for asynchronous phone delivery")
	rootCmd.AddCommand(enrichCmd)
}
