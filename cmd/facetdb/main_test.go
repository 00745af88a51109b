package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/maruel/facetdb/internal/history"
	"github.com/maruel/facetdb/internal/process"
	"github.com/maruel/facetdb/internal/project"
)

func TestReadRows(t *testing.T) {
	in := "[\"name\",\"n\"]\n\n[\"a\", 1]\n[\"b\", 2.5, ]\n"
	if _, _, err := readRows(strings.NewReader(in)); err == nil {
		t.Fatal("expected syntax error")
	}
	in = "[\"name\",\"n\",\"ok\"]\n[\"a\", 1, true]\n[null, 2.5]\n[\"c\", 1e3, {\"x\":1}]\n"
	names, rows, err := readRows(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 3 || len(rows) != 3 {
		t.Fatal(names, len(rows))
	}
	if v := rows[0].CellValue(1); v != int64(1) {
		t.Fatalf("%#v", v)
	}
	if v := rows[1].CellValue(1); v != 2.5 {
		t.Fatalf("%#v", v)
	}
	if rows[1].Cell(0) != nil {
		t.Fatal("null must be absent")
	}
	if v := rows[2].CellValue(1); v != 1000.0 {
		t.Fatalf("%#v", v)
	}
	if v := rows[2].CellValue(2); v != `{"x":1}` {
		t.Fatalf("%#v", v)
	}
	if _, _, err := readRows(strings.NewReader("")); err == nil {
		t.Fatal("expected error")
	}
	if _, _, err := readRows(strings.NewReader("[\"a\"]\n[1,2]\n")); err == nil {
		t.Fatal("expected error")
	}
}

func TestCommands(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ws, err := project.NewWorkspace(t.TempDir(), project.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ws.CloseAll(ctx) }()
	run := func(stdin string, args ...string) string {
		t.Helper()
		var out bytes.Buffer
		if err := runCommand(ctx, ws, args, strings.NewReader(stdin), &out); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		return out.String()
	}

	id := strings.TrimSpace(run("[\"city\",\"pop\"]\n[\"Paris\",2100]\n[\"Lyon\",500]\n[\"Nice\",340]\n", "create", "cities"))
	if id == "" {
		t.Fatal("missing id")
	}
	if out := run("", "list"); !strings.Contains(out, "cities") {
		t.Fatal(out)
	}

	var report process.Report
	out := run(`{"op":"row-star","starred":true,"engineConfig":{"facets":[{"type":"range","columnName":"pop","to":1000}]}}`, "apply", "cities")
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatal(err)
	}
	if report.Status != process.Done || report.Progress != 100 {
		t.Fatalf("%+v", report)
	}

	var e struct {
		Facets []struct {
			BaseNumericCount int `json:"baseNumericCount"`
			NumericCount     int `json:"numericCount"`
		} `json:"facets"`
	}
	out = run(`{"facets":[{"type":"range","columnName":"pop","from":400}]}`, "facets", id)
	if err := json.Unmarshal([]byte(out), &e); err != nil {
		t.Fatal(err)
	}
	if len(e.Facets) != 1 || e.Facets[0].BaseNumericCount != 3 || e.Facets[0].NumericCount != 3 {
		t.Fatalf("%s", out)
	}

	if out := run("", "history", "cities"); !strings.Contains(out, "Star 2 rows") || !strings.HasPrefix(out, "*") {
		t.Fatal(out)
	}
	if out := run("", "undo", "cities"); out != "undone: Star 2 rows\n" {
		t.Fatal(out)
	}
	var buf bytes.Buffer
	if err := runCommand(ctx, ws, []string{"undo", "cities"}, nil, &buf); !errors.Is(err, history.ErrNothingToUndo) {
		t.Fatal(err)
	}
	if out := run("", "redo", "cities"); out != "redone: Star 2 rows\n" {
		t.Fatal(out)
	}
	if out := run("", "export", "cities"); !strings.Contains(out, "Paris") {
		t.Fatal(out)
	}
	for _, kind := range []string{"facets", "operations"} {
		if out := run("", "schema", kind); !strings.Contains(out, "oneOf") {
			t.Fatal(kind, out)
		}
	}
	run("", "delete", "cities")
	if err := runCommand(ctx, ws, []string{"export", "cities"}, nil, &buf); !errors.Is(err, project.ErrNotFound) {
		t.Fatal(err)
	}
	if err := runCommand(ctx, ws, []string{"frobnicate", "x"}, nil, &buf); err == nil {
		t.Fatal("expected error")
	}
}
