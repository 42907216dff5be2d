package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/shopscout/internal/storage"
)

type historyOptions struct {
	keyword string
	runID   string
	since   time.Duration
	limit   int
	offset  int
	format  string
}

func newHistoryCmd(a *app) *cobra.Command {
	opts := &historyOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List storefronts saved by earlier searches, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runHistory(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.keyword, "keyword", "k", "", "only rows found for this keyword")
	f.StringVar(&opts.runID, "run-id", "", "only rows from this run")
	f.DurationVar(&opts.since, "since", 0, "only rows newer than this, e.g. 24h")
	f.IntVarP(&opts.limit, "limit", "n", 20, "maximum rows (0 for all)")
	f.IntVar(&opts.offset, "offset", 0, "rows to skip")
	f.StringVarP(&opts.format, "format", "f", "table", "output format: table, json, csv")

	return cmd
}

func (a *app) runHistory(cmd *cobra.Command, opts *historyOptions) error {
	write, err := recordWriter(opts.format)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("history needs a storage backend (set --storage-type and --storage-dsn)")
	}
	defer store.Close()

	filter := storage.Filter{
		Keyword: opts.keyword,
		RunID:   opts.runID,
		Limit:   opts.limit,
		Offset:  opts.offset,
	}
	if opts.since > 0 {
		since := time.Now().Add(-opts.since)
		filter.Since = &since
	}

	rows, err := store.Query(ctx, filter)
	if err != nil {
		return err
	}

	records := make([]storage.Storefront, len(rows))
	for i, r := range rows {
		records[i] = *r
	}
	return write(a.stdout, records)
}
