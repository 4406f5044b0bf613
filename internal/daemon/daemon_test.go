package daemon_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"shelf/internal/daemon"
	"shelf/internal/logging"
	"shelf/internal/testsupport"
)

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if d.APIAddr() == "" {
		t.Fatal("API address empty after start")
	}

	status := d.Status(context.Background())
	if !status.Running || status.PID == 0 {
		t.Fatalf("status = %+v", status)
	}
	d.Stop()
	if d.Status(context.Background()).Running {
		t.Fatal("still running after Stop")
	}
}

func TestDaemonSecondInstanceRefused(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	first, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { first.Close() })
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	cfg2 := *cfg
	cfg2.Paths.APIBind = "127.0.0.1:0"
	second, err := daemon.New(&cfg2, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New second: %v", err)
	}
	t.Cleanup(func() { second.Close() })
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("second instance acquired the lock")
	}
}

func TestDaemonServesOperationLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.LibraryDir, "Author", "Book.m4b"), 64)

	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	base := "http://" + d.APIAddr()
	resp, err := http.Post(base+"/operations/scan", "application/json", nil)
	if err != nil {
		t.Fatalf("POST scan: %v", err)
	}
	var submitted map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit status = %d", resp.StatusCode)
	}
	id := submitted["operation_id"].(string)

	deadline := time.Now().Add(5 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("scan never completed")
		}
		resp, err := http.Get(fmt.Sprintf("%s/operations/%s", base, id))
		if err != nil {
			t.Fatalf("GET operation: %v", err)
		}
		var op map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
			t.Fatalf("decode: %v", err)
		}
		resp.Body.Close()
		if op["status"] == "completed" {
			if op["total"].(float64) != 1 {
				t.Fatalf("total = %v, want 1", op["total"])
			}
			break
		}
		if op["status"] == "failed" {
			t.Fatalf("scan failed: %v", op["error"])
		}
		time.Sleep(10 * time.Millisecond)
	}
}
