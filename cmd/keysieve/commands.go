package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/ZanzyTHEbar/keysieve/sieve/db"
	"github.com/ZanzyTHEbar/keysieve/sieve/filter"
	"github.com/ZanzyTHEbar/keysieve/sieve/hits"
	"github.com/ZanzyTHEbar/keysieve/sieve/ingest"
	"github.com/ZanzyTHEbar/keysieve/sieve/keygen"
	"github.com/ZanzyTHEbar/keysieve/sieve/verify"
	"github.com/ZanzyTHEbar/keysieve/sieve/worker"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// runCmd runs the full pipeline until interrupted
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ingest if needed, build the filter and start the workers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runPipeline(ctx)
	},
}

// ingestCmd loads the dataset into the store and exits
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load the address dataset into the store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx, 1)
		if err != nil {
			return err
		}
		defer store.Close()

		snap, err := ingestStore(ctx, store)
		if err != nil {
			return err
		}

		out, err := snap.MarshalJSON()
		if err != nil {
			return err
		}
		ui := newConsole(cmd.OutOrStdout(), cmd.ErrOrStderr())
		if snap.Records == 0 {
			ui.Warning("snapshot holds no addresses, every candidate will miss")
		}
		ui.Output(string(out))
		return nil
	},
}

// checkCmd runs the verifier for the given addresses
var checkCmd = &cobra.Command{
	Use:   "check <address>...",
	Short: "Check addresses against the filter and the store",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := openStore(ctx, 1)
		if err != nil {
			return err
		}
		defer store.Close()

		snap, err := store.Snapshot(ctx)
		if err != nil {
			return err
		}
		if snap == nil {
			return fmt.Errorf("store %s has not been ingested, run `keysieve ingest` first", appConfig.Store.Path)
		}

		verifier, err := newVerifier(ctx, store, snap)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, addr := range args {
			res, err := verifier.Verify(ctx, addr)
			if err != nil {
				return err
			}
			balance := "-"
			if res.Record.Balance.Valid {
				balance = strconv.FormatInt(res.Record.Balance.Int64, 10)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", addr, res.Outcome, balance)
		}
		return w.Flush()
	},
}

var revealSecrets bool

// hitsCmd prints the hit log
var hitsCmd = &cobra.Command{
	Use:   "hits",
	Short: "Print the recorded hits",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := hits.ReadAll(appConfig.Hits.Path)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(records) == 0 {
			newConsole(out, cmd.ErrOrStderr()).Output("no hits recorded in " + appConfig.Hits.Path)
			return nil
		}
		if revealSecrets {
			for _, rec := range records {
				out.Write(rec.Format())
			}
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ADDRESS\tPUBLIC KEY\tBALANCE")
		for _, rec := range records {
			balance := "-"
			if rec.Balance.Valid {
				balance = strconv.FormatInt(rec.Balance.Int64, 10)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", rec.Address, rec.Public, balance)
		}
		return w.Flush()
	},
}

func init() {
	hitsCmd.Flags().BoolVar(&revealSecrets, "reveal", false, "print full records including secret keys")
}

func openStore(ctx context.Context, conns int) (*db.AddressDB, error) {
	store, err := db.NewAddressDB(ctx, appConfig.Store.Path, logger)
	if err != nil {
		return nil, err
	}
	store.SetMaxOpenConns(conns)
	return store, nil
}

func ingestStore(ctx context.Context, store db.AddressStore) (*db.Snapshot, error) {
	ds := appConfig.Dataset
	in := ingest.New(store, ingest.Options{
		Delimiter:    ds.Delimiter,
		Prefixes:     ds.Prefixes,
		SuffixLength: ds.SuffixLength,
		TrackBalance: ds.TrackBalance,
		AllowMissing: ds.AllowMissing,
		BatchSize:    appConfig.Store.BatchSize,
	}, logger)
	return in.Ingest(ctx, ds.Path)
}

func newVerifier(ctx context.Context, store db.AddressReader, snap *db.Snapshot) (*verify.Verifier, error) {
	f, err := filter.LoadOrBuild(ctx, appConfig.Filter.CachePath, store, filter.Options{
		ExpectedItems:     appConfig.Filter.ExpectedItems,
		FalsePositiveRate: appConfig.Filter.FalsePositiveRate,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare filter: %w", err)
	}
	return verify.New(f, store, db.KeyPolicy{SuffixLength: snap.KeySuffix}), nil
}

func runPipeline(ctx context.Context) error {
	runID := uuid.New()
	log := logger.With().Str("run", runID.String()).Logger()

	workers := appConfig.Worker.Workers()
	store, err := openStore(ctx, workers+1)
	if err != nil {
		return err
	}
	defer store.Close()

	snap, err := ingestStore(ctx, store)
	if err != nil {
		return err
	}

	verifier, err := newVerifier(ctx, store, snap)
	if err != nil {
		return err
	}

	params, err := keygen.NetworkParams(appConfig.Keygen.Network)
	if err != nil {
		return err
	}
	generator := keygen.NewGenerator(keygen.NewSecp256k1Deriver(params))

	recorder, err := hits.Open(appConfig.Hits.Path, logger)
	if err != nil {
		return err
	}
	defer recorder.Close()

	notifier, err := hits.NewNotifier(appConfig.Notify, logger)
	if err != nil {
		return err
	}
	defer notifier.Close()

	log.Info().
		Str("snapshot", snap.ID.String()).
		Int64("records", snap.Records).
		Str("network", params.Name).
		Str("hitLog", recorder.Path()).
		Msg("starting search")

	pool := worker.New(generator, verifier, recorder, notifier, worker.Options{
		Workers:        workers,
		StopOnError:    appConfig.Worker.StopOnError,
		ReportInterval: appConfig.Worker.ReportInterval(),
		RunID:          runID,
	}, logger)

	if err := pool.Run(ctx); err != nil {
		return fmt.Errorf("worker pool failed: %w", err)
	}

	st := verifier.Stats()
	log.Info().
		Int64("tested", st.Tested).
		Int64("falsePositives", st.FalsePositives).
		Int64("hits", st.ConfirmedHits).
		Int64("recorded", recorder.Appended()).
		Msg("search stopped")
	return nil
}
