package audit_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/estatedesk/estatedesk/internal/audit"
)

// ---------------------------------------------------------------------------
// MultiShipper — via NewMultiShipper factory
// ---------------------------------------------------------------------------

func TestNewMultiShipper_Empty(t *testing.T) {
	ms, err := audit.NewMultiShipper(nil)
	if err != nil {
		t.Fatalf("NewMultiShipper(nil) error: %v", err)
	}
	if ms == nil {
		t.Fatal("NewMultiShipper returned nil")
	}
}

func TestMultiShipper_ShipEmpty(t *testing.T) {
	ms, _ := audit.NewMultiShipper(nil)
	if err := ms.Ship(context.Background(), &audit.LogEntry{Action: "CREATE"}); err != nil {
		t.Errorf("Ship() on empty multi-shipper = %v, want nil", err)
	}
}

func TestNewMultiShipper_DisabledConfigSkipped(t *testing.T) {
	cfgs := []audit.ShipperConfig{
		{Enabled: false, Type: "webhook", Webhook: &audit.WebhookConfig{URL: "http://example.com"}},
	}
	ms, err := audit.NewMultiShipper(cfgs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ms.Ship(context.Background(), &audit.LogEntry{Action: "CREATE"}); err != nil {
		t.Errorf("Ship() = %v, want nil", err)
	}
}

func TestNewMultiShipper_UnknownType(t *testing.T) {
	cfgs := []audit.ShipperConfig{{Enabled: true, Type: "carrier-pigeon"}}
	if _, err := audit.NewMultiShipper(cfgs); err == nil {
		t.Error("expected error for unknown shipper type")
	}
}

func TestNewMultiShipper_MissingSubConfig(t *testing.T) {
	for _, typ := range []string{"webhook", "file"} {
		cfgs := []audit.ShipperConfig{{Enabled: true, Type: typ}}
		if _, err := audit.NewMultiShipper(cfgs); err == nil {
			t.Errorf("expected error for %s shipper without config", typ)
		}
	}
}

// ---------------------------------------------------------------------------
// WebhookShipper
// ---------------------------------------------------------------------------

func TestWebhookShipper_Ship(t *testing.T) {
	received := make(chan *audit.LogEntry, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s, want application/json", ct)
		}
		if got := r.Header.Get("X-Audit-Token"); got != "tok" {
			t.Errorf("X-Audit-Token = %s, want tok", got)
		}
		var entry audit.LogEntry
		if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
			t.Errorf("decode body: %v", err)
		}
		received <- &entry
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ws, err := audit.NewWebhookShipper(&audit.WebhookConfig{
		URL:     srv.URL,
		Headers: map[string]string{"X-Audit-Token": "tok"},
	})
	if err != nil {
		t.Fatalf("NewWebhookShipper: %v", err)
	}
	defer ws.Close()

	entry := &audit.LogEntry{Action: "DELETE", UserID: "user-1", EntityType: "communication"}
	if err := ws.Ship(context.Background(), entry); err != nil {
		t.Fatalf("Ship: %v", err)
	}

	got := <-received
	if got.Action != "DELETE" || got.UserID != "user-1" {
		t.Errorf("received entry = %+v", got)
	}
}

func TestWebhookShipper_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ws, _ := audit.NewWebhookShipper(&audit.WebhookConfig{URL: srv.URL})
	if err := ws.Ship(context.Background(), &audit.LogEntry{Action: "CREATE"}); err == nil {
		t.Error("expected error for 5xx webhook response")
	}
}

// ---------------------------------------------------------------------------
// FileShipper
// ---------------------------------------------------------------------------

func TestFileShipper_Ship(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	fs, err := audit.NewFileShipper(&audit.FileConfig{Path: path})
	if err != nil {
		t.Fatalf("NewFileShipper: %v", err)
	}

	entries := []*audit.LogEntry{
		{Action: "CREATE", EntityType: "communication"},
		{Action: "UPDATE", EntityType: "user", UserID: "user-1"},
	}
	for _, e := range entries {
		if err := fs.Ship(context.Background(), e); err != nil {
			t.Fatalf("Ship: %v", err)
		}
	}
	if err := fs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit file: %v", err)
	}
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry audit.LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Errorf("line %d is not valid JSON: %v", lines+1, err)
		}
		if entry.Action != entries[lines].Action {
			t.Errorf("line %d action = %s, want %s", lines+1, entry.Action, entries[lines].Action)
		}
		lines++
	}
	if lines != len(entries) {
		t.Errorf("audit file has %d lines, want %d", lines, len(entries))
	}
}
