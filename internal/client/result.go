package client

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
)

// Column describes one result column.
type Column struct {
	Name   string
	Type   string
	Length int
}

// Result is the outcome of one statement.
type Result struct {
	// Columns and Rows hold a result set. Both are empty for updates.
	Columns []Column
	Rows    [][]any
	// IsUpdate is true for statements that report affected rows instead of
	// a result set.
	IsUpdate bool
	Affected int64
	// Elapsed is the wall time of the request.
	Elapsed time.Duration
}

// Render writes r as an aligned table followed by a summary line:
//
//	Query OK, 2 row(s) in set (0.003512s)
func (r *Result) Render(w io.Writer) error {
	secs := r.Elapsed.Seconds()
	if r.IsUpdate {
		_, err := fmt.Fprintf(w, "Query OK, %d row(s) affected (%.6fs)\n", r.Affected, secs)
		return err
	}

	if len(r.Columns) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', tabwriter.Debug)
		names := make([]string, len(r.Columns))
		for i, c := range r.Columns {
			names[i] = " " + c.Name + " "
		}
		fmt.Fprintln(tw, strings.Join(names, "\t"))

		rule := make([]string, len(r.Columns))
		for i, c := range r.Columns {
			rule[i] = strings.Repeat("=", len(c.Name)+2)
		}
		fmt.Fprintln(tw, strings.Join(rule, "\t"))

		for _, row := range r.Rows {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = " " + formatValue(v) + " "
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "Query OK, %d row(s) in set (%.6fs)\n", len(r.Rows), secs)
	return err
}

// formatValue renders one cell. JSON null shows as NULL.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case json.Number:
		return x.String()
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
