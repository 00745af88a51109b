// Implements the subcommands.

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/maruel/facetdb/internal/facets"
	"github.com/maruel/facetdb/internal/grid"
	"github.com/maruel/facetdb/internal/operations"
	"github.com/maruel/facetdb/internal/project"
)

func runCommand(ctx context.Context, ws *project.Workspace, args []string, stdin io.Reader, stdout io.Writer) error {
	cmd, args := args[0], args[1:]
	switch cmd {
	case "create":
		if len(args) < 1 || len(args) > 2 {
			return errors.New("usage: create <name> [file]")
		}
		data, err := readInput(args[1:], stdin)
		if err != nil {
			return err
		}
		names, rows, err := readRows(bytes.NewReader(data))
		if err != nil {
			return err
		}
		g, err := grid.New(names, rows)
		if err != nil {
			return err
		}
		p, err := ws.Create(args[0], g)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, p.Metadata().ID)
		return err
	case "list":
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		for _, m := range ws.List() {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", m.ID, m.Name, m.Modified.Format("2006-01-02 15:04:05"))
		}
		return tw.Flush()
	case "schema":
		if len(args) != 1 {
			return errors.New("usage: schema facets|operations")
		}
		switch args[0] {
		case "facets":
			return writeJSON(stdout, facets.Schema())
		case "operations":
			return writeJSON(stdout, operations.Schema())
		}
		return fmt.Errorf("unknown schema %q", args[0])
	}

	if len(args) < 1 {
		return fmt.Errorf("usage: %s <project>", cmd)
	}
	id, err := ws.Lookup(args[0])
	if err != nil {
		return err
	}
	if cmd == "delete" {
		return ws.Delete(ctx, id)
	}
	p, err := ws.Get(id)
	if err != nil {
		return err
	}
	switch cmd {
	case "facets":
		data, err := readInput(args[1:], stdin)
		if err != nil {
			return err
		}
		e, err := p.Engine(data)
		if err != nil {
			return err
		}
		return writeJSON(stdout, e)
	case "apply":
		data, err := readInput(args[1:], stdin)
		if err != nil {
			return err
		}
		proc, err := p.Apply(data)
		if err != nil {
			return err
		}
		if err := proc.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				proc.Cancel()
			}
			return err
		}
		return writeJSON(stdout, proc.Report())
	case "undo":
		e, err := p.History().Undo()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(stdout, "undone: %s\n", e.Description)
		return err
	case "redo":
		e, err := p.History().Redo()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(stdout, "redone: %s\n", e.Description)
		return err
	case "history":
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		cursor := p.History().Cursor()
		for i, e := range p.History().Entries() {
			mark := " "
			if i < cursor {
				mark = "*"
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mark, e.ID, e.Time.Format("2006-01-02 15:04:05"), e.Description)
		}
		return tw.Flush()
	case "export":
		return p.Export(stdout)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// readInput reads the file named by args[0], or stdin.
func readInput(args []string, stdin io.Reader) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(args[0])
}

// readRows parses JSON lines: a first array of column names, then one array
// of cell values per row.
func readRows(r io.Reader) ([]string, []*grid.Row, error) {
	var names []string
	var rows []*grid.Row
	s := bufio.NewScanner(r)
	s.Buffer(nil, 16<<20)
	line := 0
	for s.Scan() {
		line++
		b := s.Bytes()
		if len(bytes.TrimSpace(b)) == 0 {
			continue
		}
		if names == nil {
			if err := json.Unmarshal(b, &names); err != nil {
				return nil, nil, fmt.Errorf("line %d: column names: %w", line, err)
			}
			if names == nil {
				names = []string{}
			}
			continue
		}
		d := json.NewDecoder(bytes.NewReader(b))
		d.UseNumber()
		var values []any
		if err := d.Decode(&values); err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(values) > len(names) {
			return nil, nil, fmt.Errorf("line %d: %d values for %d columns", line, len(values), len(names))
		}
		for i, v := range values {
			values[i] = cellValue(v)
		}
		rows = append(rows, grid.NewRow(values...))
	}
	if err := s.Err(); err != nil {
		return nil, nil, err
	}
	if names == nil {
		return nil, nil, errors.New("missing column names")
	}
	return names, rows, nil
}

// cellValue converts decoded JSON into a cell value.
func cellValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case string, bool, nil:
		return t
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}
