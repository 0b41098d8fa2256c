package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ruslano69/semlayer/pkg/adapters"
	"github.com/ruslano69/semlayer/pkg/audit"
	"github.com/ruslano69/semlayer/pkg/codeclean"
	"github.com/ruslano69/semlayer/pkg/export"
	"github.com/ruslano69/semlayer/pkg/loader"
	"github.com/ruslano69/semlayer/pkg/paginator"
	"github.com/ruslano69/semlayer/pkg/qerrors"
	"github.com/ruslano69/semlayer/pkg/security"
	"github.com/ruslano69/semlayer/pkg/semantic"
	"github.com/ruslano69/semlayer/pkg/xlsx"
)

func buildCmd() *cobra.Command {
	var head int
	var count bool

	cmd := &cobra.Command{
		Use:   "build <org/dataset>",
		Short: "Print the SQL built for a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := app.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var query string
			switch {
			case count:
				query, err = l.Builder().RowCountQuery()
			case head > 0:
				query, err = l.Builder().HeadQuery(head)
			default:
				query, err = l.Builder().BuildQuery()
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), query)
			return nil
		},
	}
	cmd.Flags().IntVar(&head, "head", 0, "Build the first-rows query instead")
	cmd.Flags().BoolVar(&count, "count", false, "Build the row count query instead")
	return cmd
}

func queryCmd() *cobra.Command {
	var limit int
	var sql string

	cmd := &cobra.Command{
		Use:   "query <org/dataset>",
		Short: "Execute a dataset and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l, err := app.Load(ctx, args[0])
			if err != nil {
				return err
			}

			var table *adapters.Table
			switch {
			case sql != "":
				table, err = l.ExecuteQuery(ctx, sql)
			case limit > 0:
				table, err = loader.Head(ctx, l, limit)
			default:
				var ds *loader.Dataset
				if ds, err = l.Load(ctx); err == nil {
					table = ds.Table
				}
			}
			if err != nil {
				return err
			}
			return printTable(cmd.OutOrStdout(), table)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Print only the first N rows")
	cmd.Flags().StringVar(&sql, "sql", "", "Run this SQL against the dataset backend")
	return cmd
}

func pageCmd() *cobra.Command {
	var (
		page, size            int
		search, sortBy, order string
		filters               string
		withTotal             bool
	)

	cmd := &cobra.Command{
		Use:   "page <org/dataset>",
		Short: "Print one page of a dataset with search, filters and sorting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			params, err := paginator.NewParams(page, size,
				paginator.WithSearch(search),
				paginator.WithSort(sortBy, order),
				paginator.WithFilters(filters),
			)
			if err != nil {
				return err
			}

			l, err := app.Load(ctx, args[0])
			if err != nil {
				return err
			}
			table, err := loader.Page(ctx, l, nil, params)
			if err != nil {
				return err
			}
			if err := printTable(cmd.OutOrStdout(), table); err != nil {
				return err
			}

			if withTotal {
				total, err := loader.RowCount(ctx, l)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Page %d, %d of %d row(s)\n", page, table.Len(), total)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number, starting at 1")
	cmd.Flags().IntVar(&size, "size", 10, "Rows per page")
	cmd.Flags().StringVar(&search, "search", "", "Search term matched against every column")
	cmd.Flags().StringVar(&sortBy, "sort-by", "", "Column to sort by")
	cmd.Flags().StringVar(&order, "order", "asc", "Sort order: asc or desc")
	cmd.Flags().StringVar(&filters, "filters", "", `JSON filters, e.g. {"country": ["US", "JP"]}`)
	cmd.Flags().BoolVar(&withTotal, "total", false, "Also print the dataset row count")
	return cmd
}

func cleanCmd() *cobra.Command {
	var datasets []string
	var chartsDir string
	var skipValidation bool

	cmd := &cobra.Command{
		Use:   "clean <file.py|->",
		Short: "Check generated analysis code against the loaded datasets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			names, err := datasetNames(cmd, datasets)
			if err != nil {
				return err
			}
			if chartsDir == "" {
				chartsDir = app.Config.ChartsDir
			}

			cleaner := &codeclean.Cleaner{Datasets: names, ChartsDir: chartsDir, Audit: app.Audit}
			clean := cleaner.ValidateAndClean
			if skipValidation {
				clean = cleaner.Clean
			}
			out, err := clean(cmd.Context(), code)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&datasets, "dataset", nil, "Allowed dataset (org/dataset path or schema name), repeatable")
	cmd.Flags().StringVar(&chartsDir, "charts-dir", "", "Directory for temporary charts")
	cmd.Flags().BoolVar(&skipValidation, "skip-validation", false, "Do not require an execute_sql_query call")
	return cmd
}

// datasetNames имена схем: путь org/dataset загружается, голое имя берется как есть
func datasetNames(cmd *cobra.Command, datasets []string) ([]string, error) {
	names := make([]string, 0, len(datasets))
	for _, ds := range datasets {
		if !strings.Contains(ds, "/") {
			names = append(names, ds)
			continue
		}
		l, err := app.Load(cmd.Context(), ds)
		if err != nil {
			return nil, err
		}
		names = append(names, l.Schema().Name)
	}
	return names, nil
}

func readInput(stdin io.Reader, path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func ingestCmd() *cobra.Command {
	var sheet, name, org string

	cmd := &cobra.Command{
		Use:   "ingest <file.xlsx>",
		Short: "Turn an Excel sheet into a local CSV dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			name = security.NormalizeIdentifier(name)
			path := org + "/" + semantic.UnderscoreToDash(name)
			if _, _, err := semantic.ValidateDatasetPath(path); err != nil {
				return err
			}
			outDir := filepath.Dir(semantic.SchemaPath(app.Config.DatasetsDir, path))

			span := audit.Start(app.Audit, audit.OpIngest)
			span.Entry().WithDataset(path).WithSource(args[0]).WithTarget(outDir)
			schema, err := xlsx.Ingest(args[0], sheet, outDir, name)
			if err := span.Finish(ctx, err); err != nil {
				return err
			}

			app.Log.Info("dataset ingested", "path", path, "columns", len(schema.Columns), "dir", outDir)
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&sheet, "sheet", "", "Sheet name (default: first sheet)")
	cmd.Flags().StringVar(&name, "name", "", "Dataset name (default: file name)")
	cmd.Flags().StringVar(&org, "org", "local", "Organization part of the dataset path")
	return cmd
}

func exportCmd() *cobra.Command {
	var format, out string

	cmd := &cobra.Command{
		Use:   "export <org/dataset>",
		Short: "Export a dataset to csv, csv.zst or xlsx",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if out == "" {
				ext := format
				if ext == "" {
					ext = export.FormatCSV
				}
				out = filepath.Base(args[0]) + "." + ext
			}

			l, err := app.Load(ctx, args[0])
			if err != nil {
				return err
			}
			ds, err := l.Load(ctx)
			if err != nil {
				return err
			}

			span := audit.Start(app.Audit, audit.OpExport)
			span.Entry().WithDataset(args[0]).WithTarget(out).WithRows(int64(ds.Len()))
			if err := span.Finish(ctx, export.WriteFile(out, format, ds.Table)); err != nil {
				return err
			}

			app.Log.Info("dataset exported", "path", args[0], "rows", ds.Len(), "file", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "csv, csv.zst or xlsx (default: from --out extension)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file")
	return cmd
}

func auditCmd() *cobra.Command {
	var (
		operation, status, dataset, kind string
		since                            time.Duration
		limit                            int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recent audit entries from the audit database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table := app.AuditTable()
			if table == nil {
				return fmt.Errorf("audit database is not configured (audit.database)")
			}

			filter := audit.QueryFilter{
				Operation: audit.Operation(operation),
				Status:    audit.Status(status),
				Dataset:   dataset,
				ErrorKind: qerrors.Kind(kind),
				Limit:     limit,
			}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}

			entries, err := table.Query(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No audit entries found")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintln(cmd.OutOrStdout(), e.String())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&operation, "operation", "", "Filter by operation")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status: success, failure, rejected")
	cmd.Flags().StringVar(&dataset, "dataset", "", "Filter by dataset path")
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by error kind")
	cmd.Flags().DurationVar(&since, "since", 0, "Only entries newer than this, e.g. 1h")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries")
	return cmd
}

func initConfigCmd() *cobra.Command {
	var dbType string

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a sample configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configFile); err == nil {
				return fmt.Errorf("%s already exists", configFile)
			}
			if err := SaveConfig(configFile, CreateSampleConfig(dbType)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", configFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbType, "type", "postgres", "Sample connection type: postgres, mysql, mssql, sqlite")
	return cmd
}
