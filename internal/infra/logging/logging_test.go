//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithTraceID(context.Background(), "tr-1")
	ctx = WithUserID(ctx, "owner-1")
	ctx = WithPaymentID(ctx, "pay-1")

	With(ctx, &base).Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not json: %v", err)
	}
	for k, want := range map[string]string{"trace_id": "tr-1", "user_id": "owner-1", "payment_id": "pay-1"} {
		if line[k] != want {
			t.Errorf("expected %s=%s, got %v", k, want, line[k])
		}
	}
	if _, ok := line["intent_id"]; ok {
		t.Error("intent_id should be absent when not set")
	}
	if TraceID(ctx) != "tr-1" || UserID(ctx) != "owner-1" {
		t.Error("context accessors returned wrong values")
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("pi_1234567890", false); got != "pi_1...90" {
		t.Errorf("unexpected redaction %q", got)
	}
	if got := Redact("short", false); got != "***" {
		t.Errorf("unexpected redaction %q", got)
	}
	if got := Redact("pi_1234567890", true); got != "pi_1234567890" {
		t.Errorf("dev mode should not redact, got %q", got)
	}
}
