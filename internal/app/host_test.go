package app

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/1ureka/mirrorcast/internal/config"
	"github.com/1ureka/mirrorcast/internal/signaling"
)

func TestRunServesAndShutsDown(t *testing.T) {
	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.Audio.Silence = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, cfg, func(a net.Addr) { addrCh <- a })
	}()

	var base string
	select {
	case a := <-addrCh:
		base = "http://" + a.String()
	case err := <-done:
		t.Fatalf("run returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server never became ready")
	}

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(base + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	if code, body := get("/healthz"); code != http.StatusOK || !strings.HasPrefix(body, "ok") {
		t.Errorf("healthz = %d %q", code, body)
	}
	if code, body := get("/"); code != http.StatusOK || !strings.Contains(body, "call.js") {
		t.Errorf("index = %d %q", code, body)
	}

	resp, err := http.Post(base+"/send_offer", "text/plain", strings.NewReader(""))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get(signaling.ErrorHeader) != "malformed-input" {
		t.Errorf("empty offer = %d %q", resp.StatusCode, resp.Header.Get(signaling.ErrorHeader))
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.GatherTimeout = 0

	if err := Run(context.Background(), cfg); err == nil {
		t.Fatal("expected a validation error")
	}
}

func TestICEServersConversion(t *testing.T) {
	got := iceServers([]config.ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
		{URLs: []string{"turn:turn.example:3478"}, Username: "u", Credential: "p"},
	})
	if len(got) != 2 || got[1].Username != "u" || got[1].Credential != "p" || got[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Errorf("iceServers = %+v", got)
	}
}
