package repo

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// startEngine serves a minimal Engine API on a unix socket.
func startEngine(t *testing.T, handler http.Handler) string {
	t.Helper()
	socket := filepath.Join(t.TempDir(), "engine.sock")
	listener, err := net.Listen("unix", socket)
	if err != nil {
		t.Fatalf("listen on socket: %v", err)
	}
	server := &http.Server{Handler: handler}
	go server.Serve(listener)
	t.Cleanup(func() { server.Close() })
	return socket
}

func TestListContainers(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/containers/json", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("all") != "1" {
			t.Errorf("expected all=1, got %q", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode([]ContainerSummary{
			{ID: "c1", Names: []string{"/cart-1"}, State: "running",
				Labels: map[string]string{ComposeServiceLabel: "cartservice"}},
		})
	})
	client := NewPlatformClient(startEngine(t, mux), time.Second)

	containers, err := client.ListContainers(context.Background(), true)
	if err != nil {
		t.Fatalf("ListContainers: %v", err)
	}
	if len(containers) != 1 || containers[0].ServiceLabel() != "cartservice" {
		t.Fatalf("unexpected listing: %+v", containers)
	}
}

func TestServiceLabelFallsBackToName(t *testing.T) {
	c := ContainerSummary{ID: "abc", Names: []string{"/cart-1"}}
	if got := c.ServiceLabel(); got != "cart-1" {
		t.Fatalf("expected name fallback, got %q", got)
	}
	c = ContainerSummary{ID: "abc"}
	if got := c.ServiceLabel(); got != "abc" {
		t.Fatalf("expected id fallback, got %q", got)
	}
}

func TestStopStartAndPolicy(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	record := func(s string) {
		mu.Lock()
		calls = append(calls, s)
		mu.Unlock()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/containers/c1/stop", func(w http.ResponseWriter, r *http.Request) {
		record("stop?t=" + r.URL.Query().Get("t"))
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/containers/c1/start", func(w http.ResponseWriter, r *http.Request) {
		record("start")
		w.WriteHeader(http.StatusNotModified) // already running
	})
	mux.HandleFunc("/containers/c1/update", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			RestartPolicy struct {
				Name string `json:"Name"`
			} `json:"RestartPolicy"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		record("update=" + payload.RestartPolicy.Name)
		w.WriteHeader(http.StatusOK)
	})
	client := NewPlatformClient(startEngine(t, mux), time.Second)
	ctx := context.Background()

	if err := client.StopContainer(ctx, "c1", 900*time.Millisecond); err != nil {
		t.Fatalf("StopContainer: %v", err)
	}
	if err := client.StartContainer(ctx, "c1"); err != nil {
		t.Fatalf("304 on start must not be an error: %v", err)
	}
	if err := client.SetRestartPolicy(ctx, "c1", ""); err != nil {
		t.Fatalf("SetRestartPolicy: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"stop?t=1", "start", "update=no"}
	if len(calls) != len(want) {
		t.Fatalf("expected %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, calls)
		}
	}
}

func TestInspectContainer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/containers/c1/json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Id":"c1","Name":"/cart-1",
			"State":{"Status":"exited"},
			"HostConfig":{"RestartPolicy":{"Name":"unless-stopped"}}}`))
	})
	client := NewPlatformClient(startEngine(t, mux), time.Second)

	detail, err := client.InspectContainer(context.Background(), "c1")
	if err != nil {
		t.Fatalf("InspectContainer: %v", err)
	}
	if detail.State.Status != "exited" || detail.HostConfig.RestartPolicy.Name != "unless-stopped" {
		t.Fatalf("unexpected detail: %+v", detail)
	}
}

func TestPlatformErrorsCarryBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/containers/ghost/json", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "No such container: ghost", http.StatusNotFound)
	})
	client := NewPlatformClient(startEngine(t, mux), time.Second)

	if _, err := client.InspectContainer(context.Background(), "ghost"); err == nil {
		t.Fatal("expected error for missing container")
	}
}
