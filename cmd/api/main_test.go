package main

import (
	"testing"

	"github.com/google/uuid"

	"github.com/clientela-ai/clientela/pkg/logging"
)

func TestParseBotMap(t *testing.T) {
	botID := uuid.New()
	m := parseBotMap(`{"17841400000000001": "`+botID.String()+`"}`, logging.Default())
	if len(m) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(m))
	}
	if m["17841400000000001"] != botID {
		t.Fatalf("unexpected bot id: %v", m["17841400000000001"])
	}
}

func TestParseBotMapEmpty(t *testing.T) {
	if m := parseBotMap("", logging.Default()); m != nil {
		t.Fatalf("expected nil map, got %v", m)
	}
}

func TestParseBotMapMalformed(t *testing.T) {
	if m := parseBotMap("{not json", logging.Default()); m != nil {
		t.Fatalf("expected nil map, got %v", m)
	}
}

func TestParseBotMapSkipsBadIDs(t *testing.T) {
	m := parseBotMap(`{"a": "not-a-uuid", "b": "`+uuid.NewString()+`"}`, logging.Default())
	if len(m) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(m))
	}
}
