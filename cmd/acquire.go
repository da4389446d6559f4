package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/darb-group/leadflow/internal/acquire"
	"github.com/darb-group/leadflow/internal/config"
	"github.com/darb-group/leadflow/internal/model"
	"github.com/darb-group/leadflow/internal/progress"
)

var (
	acquireTitles      []string
	acquireLocations   []string
	acquireCompanyLocs []string
	acquireRanges      []string
	acquireStatuses    []string
	acquirePreset      string
	acquireMaxPages    int
	acquirePerPage     int
)

var acquireCmd = &cobra.Command{
	Use:   "acquire",
	Short: "Paginate the search API into the raw-result backlog",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		params, err := acquireParams()
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		maxPages := acquireMaxPages
		if maxPages <= 0 {
			maxPages = cfg.Pipeline.DefaultPages
		}

		run, err := env.Store.CreateRun(ctx, model.RunKindAcquire)
		if err != nil {
			return eris.Wrap(err, "create run")
		}

		engine := acquire.New(env.Client, env.Store, acquire.Config{
			PagePause: pagePause(),
			Reporter:  progress.Run(ctx, env.Store, run.ID, progress.Logger("acquire")),
		})

		summary, runErr := engine.Run(ctx, params, maxPages)
		if runErr != nil {
			if err := env.Store.FailRun(ctx, run.ID, runErr.Error()); err != nil {
				zap.L().Warn("failed to record run failure", zap.Error(err))
			}
			return eris.Wrap(runErr, "acquisition run")
		}
		if err := env.Store.CompleteRun(ctx, run.ID, summary); err != nil {
			zap.L().Warn("failed to record run completion", zap.Error(err))
		}

		zap.L().Info("acquisition complete",
			zap.String("run_id", run.ID),
			zap.Int("pages", summary.PagesProcessed),
			zap.Int("raw_results", summary.TotalRawResults),
			zap.Int("companies", summary.TotalCompanies),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

// acquireParams resolves the search criteria: a named preset first, with any
// explicit flags layered on top.
func acquireParams() (model.SearchParams, error) {
	var params model.SearchParams

	if acquirePreset != "" {
		presets, err := config.LoadPresets(cfg.Pipeline.PresetsPath)
		if err != nil {
			return params, err
		}
		p, ok := presets[acquirePreset]
		if !ok {
			return params, eris.Errorf("unknown preset %q in %s", acquirePreset, cfg.Pipeline.PresetsPath)
		}
		params = p
	}

	if len(acquireTitles) > 0 {
		params.PersonTitles = acquireTitles
	}
	if len(acquireLocations) > 0 {
		params.PersonLocations = acquireLocations
	}
	if len(acquireCompanyLocs) > 0 {
		params.CompanyLocations = acquireCompanyLocs
	}
	if len(acquireRanges) > 0 {
		params.EmployeeRanges = acquireRanges
	}
	if len(acquireStatuses) > 0 {
		params.ContactEmailStatus = acquireStatuses
	}
	if acquirePerPage > 0 {
		params.PerPage = acquirePerPage
	}
	return params, nil
}

func init() {
	acquireCmd.Flags().StringSliceVar(&acquireTitles, "title", nil, "person job titles to search for")
	acquireCmd.Flags().StringSliceVar(&acquireLocations, "location", nil, "person locations")
	acquireCmd.Flags().StringSliceVar(&acquireCompanyLocs, "company-location", nil, "company locations")
	acquireCmd.Flags().StringSliceVar(&acquireRanges, "employees", nil, `employee count ranges as "min,max"`)
	acquireCmd.Flags().StringSliceVar(&acquireStatuses, "email-status", nil, "contact email statuses (verified, unverified, likely to engage, unavailable)")
	acquireCmd.Flags().StringVar(&acquirePreset, "preset", "", "named search preset from the presets file")
	acquireCmd.Flags().IntVar(&acquireMaxPages, "max-pages", 0, "maximum pages to fetch (default from config)")
	acquireCmd.Flags().IntVar(&acquirePerPage, "per-page", 0, "results per page")
	rootCmd.AddCommand(acquireCmd)
}
