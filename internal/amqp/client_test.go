package amqp

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},  // capped at 30s
		{10, 30 * time.Second}, // capped at 30s
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			result := exponentialBackoff(tt.attempt)
			if result != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, result, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("connection refused"), true},
		{"connection closed", errors.New("connection closed"), true},
		{"EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("broken pipe"), true},
		{"closed network connection", errors.New("use of closed network connection"), true},
		{"other error", errors.New("some other error"), false},
		{"validation error", errors.New("invalid input"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isConnectionError(tt.err)
			if result != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestChangeMessageJSON(t *testing.T) {
	timestamp := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	msg := &ChangeMessage{
		TransactionID: "tx-123",
		Op:            "created",
		Timestamp:     timestamp,
	}

	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	parsed, err := ChangeMessageFromJSON(data)
	if err != nil {
		t.Fatalf("ChangeMessageFromJSON() error = %v", err)
	}

	if parsed.TransactionID != msg.TransactionID {
		t.Errorf("parsed TransactionID = %q, want %q", parsed.TransactionID, msg.TransactionID)
	}
	if parsed.Op != msg.Op {
		t.Errorf("parsed Op = %q, want %q", parsed.Op, msg.Op)
	}
	if !parsed.Timestamp.Equal(msg.Timestamp) {
		t.Errorf("parsed Timestamp = %v, want %v", parsed.Timestamp, msg.Timestamp)
	}
}

func TestNewChangeMessage(t *testing.T) {
	msg := NewChangeMessage("tx-1", "updated")
	if msg.TransactionID != "tx-1" || msg.Op != "updated" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Timestamp should not be zero")
	}
}

func TestChangeMessageInvalidJSON(t *testing.T) {
	if _, err := ChangeMessageFromJSON([]byte(`{"transaction_id": 5}`)); err == nil {
		t.Error("ChangeMessageFromJSON() should fail with invalid JSON")
	}
}
