package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/ruslano69/semlayer/pkg/adapters"
)

// maxCellWidth длинные значения обрезаются при печати
const maxCellWidth = 40

// printTable печатает таблицу колонками и число строк
func printTable(w io.Writer, t *adapters.Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(t.Columns, "\t"))
	for _, rec := range t.Records() {
		for i, v := range rec {
			rec[i] = truncate(v)
		}
		fmt.Fprintln(tw, strings.Join(rec, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "(%d row(s))\n", t.Len())
	return err
}

func truncate(s string) string {
	s = strings.NewReplacer("\n", " ", "\t", " ").Replace(s)
	if r := []rune(s); len(r) > maxCellWidth {
		return string(r[:maxCellWidth-3]) + "..."
	}
	return s
}
