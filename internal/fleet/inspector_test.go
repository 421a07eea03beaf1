package fleet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/repo"
)

type fakePlatform struct {
	summaries []repo.ContainerSummary
	listErr   error
	startErr  map[string]error
	states    map[string]string
}

func (f *fakePlatform) ListContainers(ctx context.Context, all bool) ([]repo.ContainerSummary, error) {
	return f.summaries, f.listErr
}

func (f *fakePlatform) StartContainer(ctx context.Context, id string) error {
	if err := f.startErr[id]; err != nil {
		return err
	}
	if f.states == nil {
		f.states = map[string]string{}
	}
	f.states[id] = "running"
	return nil
}

func (f *fakePlatform) InspectContainer(ctx context.Context, id string) (repo.ContainerDetail, error) {
	var detail repo.ContainerDetail
	detail.ID = id
	detail.State.Status = f.states[id]
	return detail, nil
}

func summary(id, service, state string) repo.ContainerSummary {
	return repo.ContainerSummary{
		ID:     id,
		Names:  []string{"/" + id},
		State:  state,
		Labels: map[string]string{repo.ComposeServiceLabel: service},
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		want models.ServiceCategory
	}{
		{"frontend", models.CategoryEntrypoint},
		{"kafka", models.CategoryInfrastructure},
		{"kafka-broker", models.CategoryInfrastructure},
		{"jaeger", models.CategoryInfrastructure},
		{"cart", models.CategoryApplication},
	}
	for _, tc := range cases {
		if got := Classify(tc.name); got != tc.want {
			t.Fatalf("Classify(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestEligible(t *testing.T) {
	disallow := map[string]struct{}{"payment": {}}
	if Eligible("frontend", nil) {
		t.Fatal("entrypoints are never eligible")
	}
	if Eligible("kafka", nil) {
		t.Fatal("infrastructure is never eligible")
	}
	if Eligible("payment", disallow) {
		t.Fatal("disallowed services are not eligible")
	}
	if !Eligible("cart", disallow) {
		t.Fatal("application services are eligible by default")
	}
}

func TestSnapshotPartitionsFleet(t *testing.T) {
	platform := &fakePlatform{summaries: []repo.ContainerSummary{
		summary("c1", "CartService", "running"),
		summary("c2", "frontend", "running"),
		summary("c3", "kafka", "running"),
		summary("c4", "payment_service-1", "exited"),
	}}
	inspector := NewInspector(nil, platform, []string{"payment"})

	fleet, err := inspector.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(fleet.Eligible) != 1 || fleet.Eligible[0].Service != "cart" {
		t.Fatalf("expected only cart eligible, got %+v", fleet.Eligible)
	}
	if len(fleet.Excluded) != 3 {
		t.Fatalf("expected 3 excluded, got %d", len(fleet.Excluded))
	}

	services := fleet.Services()
	if len(services) != 4 {
		t.Fatalf("expected 4 unique services, got %d", len(services))
	}
	for _, svc := range services {
		if svc.Name == "cart" && !svc.Eligible {
			t.Fatal("cart must be marked eligible")
		}
		if svc.Name == "frontend" && svc.Category != models.CategoryEntrypoint {
			t.Fatalf("frontend category = %q", svc.Category)
		}
	}
}

func TestSnapshotPropagatesListError(t *testing.T) {
	platform := &fakePlatform{listErr: errors.New("socket gone")}
	inspector := NewInspector(nil, platform, nil)
	if _, err := inspector.Snapshot(context.Background()); err == nil {
		t.Fatal("expected list error to propagate")
	}
}

func TestEnsureRunningDropsUnrestorable(t *testing.T) {
	platform := &fakePlatform{
		startErr: map[string]error{"c2": errors.New("no such container")},
		states:   map[string]string{},
	}
	inspector := NewInspector(nil, platform, nil)
	fleet := Fleet{Eligible: []models.Container{
		{ID: "c1", Name: "cart", Service: "cart", State: models.StateRunning},
		{ID: "c2", Name: "ad", Service: "ad", State: models.StateExited},
		{ID: "c3", Name: "email", Service: "email", State: models.StateExited},
	}}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	restored := inspector.EnsureRunning(ctx, fleet)
	if len(restored.Eligible) != 2 {
		t.Fatalf("expected 2 survivors, got %+v", restored.Eligible)
	}
	for _, c := range restored.Eligible {
		if c.ID == "c2" {
			t.Fatal("unrestorable container must be dropped")
		}
		if c.State != models.StateRunning {
			t.Fatalf("survivor %s not running", c.ID)
		}
	}
}
