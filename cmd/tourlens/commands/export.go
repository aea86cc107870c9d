package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	scraper "github.com/tourlens/scraper"
	"github.com/tourlens/scraper/progress"
)

var (
	exportFilter   filterFlags
	exportOut      string
	exportEncoding string
	exportNoBOM    bool
	exportResume   string
	exportListOnly bool
	exportFilters  string
	exportParallel int
)

func init() {
	addFilterFlags(exportCmd, &exportFilter)
	flags := exportCmd.Flags()
	flags.StringVar(&exportOut, "out", "", "Output file, .csv or .xlsx. Defaults to a timestamped CSV in the output directory.")
	flags.StringVar(&exportEncoding, "encoding", "utf-8", "CSV encoding: utf-8 or euc-kr.")
	flags.BoolVar(&exportNoBOM, "no-bom", false, "Omit the UTF-8 byte order mark.")
	flags.StringVar(&exportResume, "resume", "", "Previous CSV export; records already in it are skipped.")
	flags.BoolVar(&exportListOnly, "list-only", false, "Export list fields only, without opening records.")
	flags.StringVar(&exportFilters, "filters", "", "JSON file with an array of filters to export, one file each.")
	flags.IntVar(&exportParallel, "parallel", 1, "Exports run at the same time with --filters.")
	rootCmd.AddCommand(exportCmd)
}

func defaultOutput(filter scraper.SearchFilter, suffix string) string {
	name := fmt.Sprintf("%v_%v%v.csv", filter.Kind, time.Now().Format("20060102_150405"), suffix)
	return filepath.Join(cfg.OutputDir, name)
}

func resumeIDs(path string) (map[string]bool, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	columns, records, err := scraper.ReadCSV(f, exportEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to read %v: %v", path, err)
	}
	return scraper.RecordIDs(columns, records), nil
}

func readFilters(path string) ([]scraper.SearchFilter, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var filters []scraper.SearchFilter
	if err := json.Unmarshal(b, &filters); err != nil {
		return nil, fmt.Errorf("failed to parse %v: %v", path, err)
	}
	return filters, nil
}

// progressSink reports to the console, and to Redis when configured.
// The returned close func is never nil.
func progressSink(ctx context.Context, job string) (scraper.ProgressSink, func()) {
	console := progress.NewConsoleSink(log)
	if cfg.RedisAddr == "" {
		return console, func() {}
	}
	// the final status must still be published after an interrupt
	redis := progress.NewRedisSink(context.WithoutCancel(ctx), cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream, job, log)
	if err := redis.Ping(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, progress goes to the console only")
		redis.Close()
		return console, func() {}
	}
	return progress.Multi{console, redis}, func() { redis.Close() }
}

func saveJob(job *scraper.ExportJob, out string) error {
	if job.Table == nil || len(job.Table.Rows) == 0 {
		log.Info().Msg("nothing to write")
		return nil
	}
	options := scraper.CSVOptions{BOM: !exportNoBOM, Encoding: exportEncoding}
	if err := scraper.SaveTable(out, job.Table, options); err != nil {
		return err
	}
	if err := scraper.SaveExportMetadata(out, scraper.MetadataFor(job)); err != nil {
		return err
	}
	log.Info().Str("file", out).Int("rows", len(job.Table.Rows)).Msg("export saved")
	return nil
}

var exportCmd = &cobra.Command{
	Use:   "export [filter flags] [--out file]",
	Short: "Exports every record of a search to CSV or XLSX.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		resume, err := resumeIDs(exportResume)
		if err != nil {
			return err
		}

		failures, err := scraper.OpenFailureLog(cfg.FailureLog)
		if err != nil {
			return err
		}
		defer failures.Close()

		options := cfg.ExportOptions()
		options.SkipDetails = exportListOnly
		options.Resume = resume
		exporter := &scraper.Exporter{
			Launch:   scraper.ChromeLauncher(log),
			Browser:  cfg.BrowserOptions(),
			Routes:   cfg.Routes(),
			BaseURL:  cfg.BaseURL,
			Log:      log,
			Failures: failures,
			Options:  options,
		}

		if exportFilters != "" {
			return exportMany(ctx, exporter)
		}

		filter, err := exportFilter.filter()
		if err != nil {
			return err
		}
		out := exportOut
		if out == "" {
			out = defaultOutput(filter, "")
		}
		sink, closeSink := progressSink(ctx, strings.TrimSuffix(filepath.Base(out), filepath.Ext(out)))
		defer closeSink()
		exporter.Progress = sink

		job, err := exporter.Export(ctx, filter)
		if saveErr := saveJob(job, out); saveErr != nil {
			log.Error().Err(saveErr).Str("file", out).Msg("could not save export")
			if err == nil {
				err = saveErr
			}
		}
		fmt.Println(job.Status)
		return err
	},
}

func exportMany(ctx context.Context, exporter *scraper.Exporter) error {
	filters, err := readFilters(exportFilters)
	if err != nil {
		return err
	}
	sink, closeSink := progressSink(ctx, strings.TrimSuffix(filepath.Base(exportFilters), filepath.Ext(exportFilters)))
	defer closeSink()
	exporter.Progress = sink

	jobs, err := exporter.ExportAll(ctx, filters, exportParallel)
	for i, job := range jobs {
		if job == nil {
			continue
		}
		out := defaultOutput(job.Filter, fmt.Sprintf("_%d", i+1))
		if saveErr := saveJob(job, out); saveErr != nil {
			log.Error().Err(saveErr).Str("file", out).Msg("could not save export")
		}
		fmt.Printf("%d: %v\n", i+1, job.Status)
	}
	return err
}
