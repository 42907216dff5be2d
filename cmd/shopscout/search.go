package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/shopscout/internal/export"
	"github.com/FranksOps/shopscout/internal/pipeline"
	"github.com/FranksOps/shopscout/internal/report"
	"github.com/FranksOps/shopscout/internal/server"
	"github.com/FranksOps/shopscout/internal/storage"
)

// autoXLSX is the --xlsx value that means "derive the name from the keyword".
const autoXLSX = "auto"

type searchOptions struct {
	limit  int
	format string
	xlsx   string
	report string
}

func newSearchCmd(a *app) *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search <keyword>...",
		Short: "Search a keyword and resolve the storefronts selling it",
		Example: `  shopscout search Keripik Sanjai --limit 20
  shopscout search "kopi gayo" --xlsx --report text`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.limit, "limit", "n", server.DefaultLimit,
		fmt.Sprintf("number of search hits to request (%d-%d)", pipeline.MinLimit, pipeline.MaxLimit))
	f.StringVarP(&opts.format, "format", "f", "table", "output format: table, json, csv")
	f.StringVar(&opts.xlsx, "xlsx", "", "also write an Excel workbook; --xlsx=path overrides shopee_<keyword>.xlsx")
	f.Lookup("xlsx").NoOptDefVal = autoXLSX
	f.StringVar(&opts.report, "report", "", "print a run summary to stderr: text, json, html")
	f.Int("concurrency", 1, "parallel shop-detail lookups")
	f.Duration("delay", time.Second, "wait before each shop-detail lookup")

	return cmd
}

func (a *app) runSearch(cmd *cobra.Command, keyword string, opts *searchOptions) error {
	if err := pipeline.ValidateRequest(keyword, opts.limit); err != nil {
		return err
	}
	write, err := recordWriter(opts.format)
	if err != nil {
		return err
	}
	writeReport, err := reportWriter(opts.report)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	stopMetrics := a.startMetrics()
	defer stopMetrics(ctx)

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	p, err := a.newPipeline()
	if err != nil {
		return err
	}

	run, runErr := p.Execute(ctx, keyword, opts.limit)

	if writeReport != nil {
		if err := writeReport(a.stderr, report.GenerateSummary(run, runErr)); err != nil {
			return err
		}
	}

	if run == nil || len(run.Records) == 0 {
		fmt.Fprintln(a.stderr, server.NoDataMessage)
		return errNoData
	}

	if store != nil {
		for i := range run.Records {
			if err := store.Save(ctx, &run.Records[i]); err != nil {
				a.logger.Warn("failed to save storefront", "shop_id", run.Records[i].ShopID, "err", err)
			}
		}
	}

	if err := write(a.stdout, run.Records); err != nil {
		return err
	}

	if opts.xlsx != "" {
		path := opts.xlsx
		if path == autoXLSX {
			path = export.FileName(keyword)
		}
		if err := writeXLSXFile(path, run.Records); err != nil {
			return err
		}
		a.logger.Info("workbook written", "path", path, "rows", len(run.Records))
	}

	return nil
}

func writeXLSXFile(path string, records []storage.Storefront) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create workbook: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", cerr)
		}
	}()
	return export.WriteXLSX(f, records)
}

type recordWriterFunc func(io.Writer, []storage.Storefront) error

func recordWriter(format string) (recordWriterFunc, error) {
	switch format {
	case "table":
		return export.WriteTable, nil
	case "json":
		return export.WriteJSON, nil
	case "csv":
		return export.WriteCSV, nil
	}
	return nil, fmt.Errorf("unknown format %q (want table, json or csv)", format)
}

type reportWriterFunc func(io.Writer, report.Summary) error

// reportWriter returns nil for an empty name.
func reportWriter(name string) (reportWriterFunc, error) {
	switch name {
	case "":
		return nil, nil
	case "text":
		return report.WriteText, nil
	case "json":
		return report.WriteJSON, nil
	case "html":
		return report.WriteHTML, nil
	}
	return nil, fmt.Errorf("unknown report %q (want text, json or html)", name)
}
