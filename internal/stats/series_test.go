package stats

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRoundSeriesRoundTrip(t *testing.T) {
	baseDir := t.TempDir()
	artifacts := sampleArtifacts("run-1")
	if _, err := WriteRunArtifacts(baseDir, artifacts); err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	rounds, ok, err := ReadRoundSeries(baseDir, "run-1")
	if err != nil || !ok {
		t.Fatalf("read round series: ok=%v err=%v", ok, err)
	}
	if len(rounds) != len(artifacts.Rounds) {
		t.Fatalf("expected %d rounds, got %d", len(artifacts.Rounds), len(rounds))
	}
	for i := range rounds {
		if rounds[i] != artifacts.Rounds[i] {
			t.Fatalf("row %d: got %+v want %+v", i, rounds[i], artifacts.Rounds[i])
		}
	}
}

func TestReadRoundSeriesMissingAndMalformed(t *testing.T) {
	baseDir := t.TempDir()
	if _, ok, err := ReadRoundSeries(baseDir, "missing"); err != nil || ok {
		t.Fatalf("expected missing series, ok=%v err=%v", ok, err)
	}

	runDir := filepath.Join(baseDir, "bad")
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, roundSeriesCSV), []byte("round,alpha\n1,2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := ReadRoundSeries(baseDir, "bad"); err == nil {
		t.Fatal("expected header error")
	}
}
