package graph

import (
	"testing"

	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/repo"
)

func TestBuildCollapsesBrokerHops(t *testing.T) {
	builder := NewBuilder([]string{"kafka"}, []string{"frontend"})
	g, err := builder.Build([]repo.RelationRecord{
		{Caller: "frontend", Callee: "CheckoutService", Transport: models.TransportSync, CallCount: 4},
		{Caller: "checkoutservice", Callee: "kafka", Transport: models.TransportSync, CallCount: 2},
		{Caller: "kafka", Callee: "fraud_service", Transport: models.TransportSync, CallCount: 2},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if _, ok := g.Index("kafka"); ok {
		t.Fatal("broker node must not appear in the graph")
	}
	checkout, ok := g.Index("checkout")
	if !ok {
		t.Fatalf("checkout missing from %v", g.Services)
	}
	fraud, ok := g.Index("fraud")
	if !ok {
		t.Fatalf("fraud missing from %v", g.Services)
	}
	if !g.IsAsync(checkout, fraud) {
		t.Fatal("collapsed broker hop must be tagged async")
	}
	frontend, _ := g.Index("frontend")
	if g.IsAsync(frontend, checkout) {
		t.Fatal("direct call must stay sync")
	}
	if len(g.Entrypoints) != 1 || g.Entrypoints[0] != frontend {
		t.Fatalf("expected frontend as entrypoint, got %v", g.Entrypoints)
	}
}

func TestBuildAsyncTagWinsOverSyncDuplicate(t *testing.T) {
	builder := NewBuilder(nil, nil)
	g, err := builder.Build([]repo.RelationRecord{
		{Caller: "a", Callee: "b", Transport: models.TransportSync},
		{Caller: "a", Callee: "b", Transport: models.TransportAsync},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(g.Edges) != 1 {
		t.Fatalf("duplicate edge not unioned: %v", g.Edges)
	}
	ai, _ := g.Index("a")
	bi, _ := g.Index("b")
	if !g.IsAsync(ai, bi) {
		t.Fatal("async observation must win over the sync duplicate")
	}
}

func TestBuildSkipsSelfAndEmptyEdges(t *testing.T) {
	builder := NewBuilder(nil, nil)
	g, err := builder.Build([]repo.RelationRecord{
		{Caller: "cartservice", Callee: "cart_service-1", Transport: models.TransportSync}, // same after normalization
		{Caller: "", Callee: "cart", Transport: models.TransportSync},
		{Caller: "frontend", Callee: "cart", Transport: models.TransportSync},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(g.Edges) != 1 {
		t.Fatalf("expected the single real edge, got %v", g.Edges)
	}
}

func TestPrepareRejectsBadShapes(t *testing.T) {
	g := &Graph{Services: []string{"a", "b"}, Edges: [][2]int{{0, 5}}}
	if err := g.Prepare(); err == nil {
		t.Fatal("expected out-of-range edge to be rejected")
	}
	g = &Graph{Services: []string{"a", "b"}, Edges: [][2]int{{0, 1}}, AsyncEdges: [][2]int{{1, 0}}}
	if err := g.Prepare(); err == nil {
		t.Fatal("expected async edge outside the base set to be rejected")
	}
	g = &Graph{Services: []string{"a"}, Entrypoints: []int{2}}
	if err := g.Prepare(); err == nil {
		t.Fatal("expected out-of-range entrypoint to be rejected")
	}
}

func TestReachableModes(t *testing.T) {
	// frontend -> cart (sync), cart -> email (async)
	g := &Graph{
		Services:   []string{"cart", "email", "frontend"},
		Edges:      [][2]int{{2, 0}, {0, 1}},
		AsyncEdges: [][2]int{{0, 1}},
	}
	if err := g.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	frontend, _ := g.Index("frontend")
	email, _ := g.Index("email")

	all := Reachable(g.Adjacency(models.ModeBlocking), frontend, nil)
	if !all[email] {
		t.Fatal("blocking adjacency must cross async edges")
	}
	syncOnly := Reachable(g.Adjacency(models.ModeNonBlocking), frontend, nil)
	if syncOnly[email] {
		t.Fatal("non-blocking adjacency must drop async edges")
	}

	// A dead intermediate severs the path; a dead entry reaches nothing.
	cart, _ := g.Index("cart")
	alive := []bool{true, true, true}
	alive[cart] = false
	if got := Reachable(g.Adjacency(models.ModeBlocking), frontend, alive); got[email] {
		t.Fatal("path through a dead node must be severed")
	}
	alive = []bool{true, true, false}
	if got := Reachable(g.Adjacency(models.ModeBlocking), frontend, alive); got[frontend] {
		t.Fatal("a dead entry must reach nothing")
	}
}
