package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientNodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != NodesPath {
			t.Errorf("path = %s, want %s", r.URL.Path, NodesPath)
		}
		w.Write([]byte(`{"nodes": [{"node_num": 1, "long_name": "Alpha"}, {"node_num": 2}]}`))
	}))
	defer srv.Close()

	nodes, err := NewClient(srv.URL).Nodes(context.Background())
	if err != nil {
		t.Fatalf("Nodes: %v", err)
	}
	if len(nodes) != 2 || nodes[0].LongName != "Alpha" {
		t.Errorf("nodes = %+v", nodes)
	}
}

func TestClientTraceroutes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != TraceroutesPath {
			t.Errorf("path = %s, want %s", r.URL.Path, TraceroutesPath)
		}
		if hours := r.URL.Query().Get("hours"); hours != "72" {
			t.Errorf("hours = %q, want 72", hours)
		}
		w.Write([]byte(`[{"route": [1, 2, 3]}]`))
	}))
	defer srv.Close()

	traceroutes, err := NewClient(srv.URL).Traceroutes(context.Background(), Lookback3Days)
	if err != nil {
		t.Fatalf("Traceroutes: %v", err)
	}
	if len(traceroutes) != 1 {
		t.Errorf("traceroutes = %+v", traceroutes)
	}
}

func TestClientBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).Nodes(context.Background()); err == nil {
		t.Error("expected error on 502")
	}
}

func TestClientInvalidLookback(t *testing.T) {
	// Never reaches the network; the window is rejected first.
	c := NewClient("http://127.0.0.1:0")
	if _, err := c.Traceroutes(context.Background(), Lookback(100)); err == nil {
		t.Error("expected error for lookback outside the enumerated set")
	}
}

func TestClientTrimsTrailingSlash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != NodesPath {
			t.Errorf("path = %s, want %s", r.URL.Path, NodesPath)
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL + "/").Nodes(context.Background()); err != nil {
		t.Fatalf("Nodes: %v", err)
	}
}
