package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"mongoscan/internal/apis/dtos"
	"mongoscan/internal/di"
	"mongoscan/internal/services"
	"mongoscan/pkg/locator"
	"mongoscan/pkg/rowconv"
)

func tableService() services.TableService {
	setup()
	svc, err := di.GetTableService()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to get table service:", err)
		os.Exit(1)
	}
	return svc
}

func newTablesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := tableService()
			defer di.Shutdown()

			tables, _, err := svc.ListTables()
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(tables))
			for _, t := range tables {
				layout := "inferred"
				if t.Declared {
					layout = strconv.Itoa(len(t.Columns)) + " columns"
				}
				rows = append(rows, []string{t.Name, t.Namespace, layout, t.Locator})
			}
			render(cmd.OutOrStdout(), []string{"Table", "Namespace", "Layout", "Locator"}, rows)
			return nil
		},
	}
}

func newScanCommand() *cobra.Command {
	var (
		where   string
		columns []string
		sorts   []string
		limit   int64
		offset  int64
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "scan <table>",
		Short: "Scan rows of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &dtos.ScanRequest{Columns: columns, Limit: limit, Offset: offset}
			if where != "" {
				req.Where = json.RawMessage(where)
			}
			for _, s := range sorts {
				req.Sort = append(req.Sort, parseSort(s))
			}

			svc := tableService()
			defer di.Shutdown()
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			resp, _, err := svc.Scan(ctx, args[0], req)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(resp.Rows))
			for _, row := range resp.Rows {
				cells := make([]string, len(row))
				for i, cell := range row {
					cells[i] = rowconv.FormatCell(cell)
				}
				rows = append(rows, cells)
			}
			render(cmd.OutOrStdout(), resp.Columns, rows)
			fmt.Fprintf(cmd.ErrOrStderr(), "%d rows (estimate %d)%s\n", len(resp.Rows), resp.Estimate, pushdownNote(resp.Pushdown))
			return nil
		},
	}
	cmd.Flags().StringVarP(&where, "where", "w", "", `predicate as JSON, e.g. {"op":"eq","field":"city","value":"Paris"}`)
	cmd.Flags().StringSliceVarP(&columns, "columns", "c", nil, "columns to return")
	cmd.Flags().StringSliceVarP(&sorts, "sort", "s", nil, "sort fields, field or field:desc")
	cmd.Flags().Int64VarP(&limit, "limit", "l", 100, "maximum rows")
	cmd.Flags().Int64Var(&offset, "offset", 0, "rows to skip")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "scan timeout")
	return cmd
}

func newCountCommand() *cobra.Command {
	var where string
	cmd := &cobra.Command{
		Use:   "count <table>",
		Short: "Count rows of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &dtos.CountRequest{}
			if where != "" {
				req.Where = json.RawMessage(where)
			}

			svc := tableService()
			defer di.Shutdown()
			resp, _, err := svc.Count(context.Background(), args[0], req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", resp.Count)
			fmt.Fprintf(cmd.ErrOrStderr(), "mode %s%s\n", resp.Mode, pushdownNote(resp.Pushdown))
			return nil
		},
	}
	cmd.Flags().StringVarP(&where, "where", "w", "", "predicate as JSON")
	return cmd
}

func newSchemaCommand() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "schema <table>",
		Short: "Show the inferred schema of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := tableService()
			defer di.Shutdown()

			get := svc.GetSchema
			if refresh {
				get = svc.RefreshSchema
			}
			resp, _, err := get(context.Background(), args[0])
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(resp.Fields))
			for _, f := range resp.Fields {
				rows = append(rows, []string{f.Column, f.Path, f.Type, strconv.Itoa(f.Length), strconv.Itoa(f.Observed)})
			}
			render(cmd.OutOrStdout(), []string{"Column", "Path", "Type", "Length", "Seen"}, rows)
			fmt.Fprintf(cmd.ErrOrStderr(), "%s sampled %d documents, fingerprint %s\n", resp.Namespace, resp.SampleSize, resp.Fingerprint)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "drop the cached schema first")
	return cmd
}

func newParseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <locator>",
		Short: "Parse a locator and show its parts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := locator.Parse(args[0])
			if err != nil {
				return err
			}
			render(cmd.OutOrStdout(), []string{"Part", "Value"}, locatorRows(loc))
			return nil
		},
	}
}

func newTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue an API bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setup()
			jwt, err := di.GetJWTService()
			if err != nil {
				return err
			}
			token, err := jwt.GenerateToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), *token)
			return nil
		},
	}
}

func locatorRows(loc *locator.Locator) [][]string {
	hosts := make([]string, 0, len(loc.Hosts))
	for _, h := range loc.Hosts {
		hosts = append(hosts, h.Name+":"+strconv.Itoa(h.Port))
	}
	user := ""
	if loc.Credentials != nil {
		user = loc.Credentials.Username
	}
	return [][]string{
		{"scheme", loc.Scheme},
		{"hosts", strings.Join(hosts, ",")},
		{"user", user},
		{"database", loc.Database},
		{"collection", loc.Collection},
		{"auth source", loc.AuthSource},
		{"replica set", loc.ReplicaSet},
		{"tls", strconv.FormatBool(loc.TLS)},
		{"connect timeout", loc.ConnectTimeout.String()},
		{"socket timeout", loc.SocketTimeout.String()},
		{"canonical", loc.Redacted()},
	}
}

func parseSort(s string) dtos.SortField {
	field, dir, _ := strings.Cut(s, ":")
	return dtos.SortField{Field: field, Desc: strings.EqualFold(dir, "desc")}
}

func pushdownNote(p *dtos.PushdownResponse) string {
	switch {
	case p == nil:
		return ""
	case p.Pushed:
		return ", predicate pushed down"
	default:
		return ", predicate filtered locally: " + p.Reason
	}
}

func render(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.AppendBulk(rows)
	table.Render()
}
