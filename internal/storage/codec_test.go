package storage

import (
	"errors"
	"testing"
)

func TestDecodeRunRejectsVersionMismatch(t *testing.T) {
	run := sampleRun("run-1", "2026-03-01T00:00:00Z")
	run.SchemaVersion = CurrentSchemaVersion + 1
	data, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeRun(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestDecodeRoundsRejectsVersionMismatch(t *testing.T) {
	rounds := sampleRounds(2)
	rounds[1].CodecVersion = 0
	data, err := EncodeRounds(rounds)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeRounds(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestDecodeRunRejectsMalformedPayload(t *testing.T) {
	if _, err := DecodeRun([]byte("{not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDecodeRunFields(t *testing.T) {
	data, err := EncodeRun(sampleRun("run-9", "2026-03-01T00:00:00Z"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	run, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.ID != "run-9" || run.NumValidators != 10 || run.Summaries[0].Termination != "rounds_limit" {
		t.Fatalf("unexpected decoded run: %+v", run)
	}
}
