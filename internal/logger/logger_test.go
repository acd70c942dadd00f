package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestInitWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("warn", false, &buf)
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Info().Msg("hidden")
	log.Warn().Str("attemptId", "a1").Msg("visible")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "visible" || entry["attemptId"] != "a1" || entry["service"] != "quiz-attempt-service" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestInitFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("loud", false, &buf)
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info level, got %s", zerolog.GlobalLevel())
	}
}
