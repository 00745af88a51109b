package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefaults(t *testing.T) {
	dir := t.TempDir()
	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if c.Binning.MaxBins != 100 || c.Process.BatchDelay != 50*time.Millisecond || c.Recon.BatchSize != 10 {
		t.Fatalf("%+v", c)
	}
	if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
		t.Fatal(err)
	}
	// Reloading the written file yields the same values.
	c2, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if *c2 != *c {
		t.Fatalf("%+v != %+v", c2, c)
	}
}

func TestLoadPartial(t *testing.T) {
	dir := t.TempDir()
	data := "log_level: debug\nprocess:\n  batch_delay: 1s\nrecon:\n  rate: 2.5\n"
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if c.LogLevel != "debug" || c.Process.BatchDelay != time.Second || c.Process.Concurrency != 1 || c.Recon.Rate != 2.5 || c.Recon.BatchSize != 10 {
		t.Fatalf("%+v", c)
	}
	env := c.Env()
	if env.Recon.BatchDelay != time.Second || env.ReconRate != 2.5 || env.Facets.MaxBins != 100 {
		t.Fatalf("%+v", env)
	}
}

func TestLoadInvalid(t *testing.T) {
	data := map[string]string{
		"level":    "log_level: loud\n",
		"bins":     "binning:\n  max_bins: 0\n",
		"delay":    "process:\n  batch_delay: -1s\n",
		"rate":     "recon:\n  rate: -1\n",
		"syntax":   "binning: [\n",
		"parallel": "process:\n  concurrency: 0\n",
	}
	for name, content := range data {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(dir); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	data := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, line := range data {
		got, err := ParseLevel(line.in)
		if err != nil || got != line.want {
			t.Fatal(line.in, got, err)
		}
	}
}

func TestProjectsDir(t *testing.T) {
	c := Default()
	if got := c.ProjectsDir("/data"); got != "/data" {
		t.Fatal(got)
	}
	c.DataDir = "projects"
	if got := c.ProjectsDir("/data"); got != filepath.Join("/data", "projects") {
		t.Fatal(got)
	}
	c.DataDir = "/elsewhere"
	if got := c.ProjectsDir("/data"); got != "/elsewhere" {
		t.Fatal(got)
	}
}
