package fleet

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/repo"
)

// Platform defines the container platform operations the inspector needs.
type Platform interface {
	ListContainers(ctx context.Context, all bool) ([]repo.ContainerSummary, error)
	StartContainer(ctx context.Context, id string) error
	InspectContainer(ctx context.Context, id string) (repo.ContainerDetail, error)
}

// infrastructureNames is the built-in exclusion set: proxies, tracing
// backends, dashboards, brokers, and load generators are never chaos
// targets, regardless of what the disallowlist says.
var infrastructureNames = map[string]struct{}{
	"frontend-proxy": {},
	"jaeger":         {},
	"grafana":        {},
	"otel-collector": {},
	"zipkin":         {},
	"kafka":          {},
	"kafka-server":   {},
	"prometheus":     {},
	"loadgenerator":  {},
	"valkey":         {},
	"redis":          {},
	"flagd":          {},
}

// entrypointNames marks services that receive external traffic; they anchor
// reachability and are never killed.
var entrypointNames = map[string]struct{}{
	"frontend": {},
	"gateway":  {},
	"envoy":    {},
	"nginx":    {},
}

// Classify buckets a normalized service name into a category.
func Classify(name string) models.ServiceCategory {
	if _, ok := entrypointNames[name]; ok {
		return models.CategoryEntrypoint
	}
	if _, ok := infrastructureNames[name]; ok {
		return models.CategoryInfrastructure
	}
	for infra := range infrastructureNames {
		if strings.HasPrefix(name, infra+"-") {
			return models.CategoryInfrastructure
		}
	}
	return models.CategoryApplication
}

// Eligible reports whether a normalized service name may be a chaos target
// under the given disallowlist. Entrypoint and infrastructure services are
// excluded unconditionally.
func Eligible(name string, disallow map[string]struct{}) bool {
	if Classify(name) != models.CategoryApplication {
		return false
	}
	_, disallowed := disallow[name]
	return !disallowed
}

// Fleet is one point-in-time partition of the running containers.
type Fleet struct {
	Eligible []models.Container
	Excluded []models.Container
}

// Inspector maps logical service names to running container instances and
// partitions them into chaos-eligible and excluded sets.
type Inspector struct {
	logger   *slog.Logger
	platform Platform
	disallow map[string]struct{}
}

// NewInspector constructs an Inspector. The disallowlist entries must
// already be normalized (config.LoadDisallowlist does this).
func NewInspector(logger *slog.Logger, platform Platform, disallowlist []string) *Inspector {
	if logger == nil {
		logger = slog.Default()
	}
	disallow := make(map[string]struct{}, len(disallowlist))
	for _, name := range disallowlist {
		disallow[name] = struct{}{}
	}
	return &Inspector{logger: logger, platform: platform, disallow: disallow}
}

// Snapshot enumerates containers and partitions them by eligibility. When a
// non-empty disallowlist matches nothing, the built-in infrastructure
// exclusions still apply, so brokers and proxies can never become targets;
// the mismatch is surfaced as a warning.
func (i *Inspector) Snapshot(ctx context.Context) (Fleet, error) {
	summaries, err := i.platform.ListContainers(ctx, true)
	if err != nil {
		return Fleet{}, err
	}

	var fleet Fleet
	disallowMatched := 0
	for _, summary := range summaries {
		name := models.NormalizeService(summary.ServiceLabel())
		container := models.Container{
			ID:      summary.ID,
			Name:    summary.ServiceLabel(),
			Service: name,
			State:   models.ParseContainerState(summary.State),
		}
		if _, ok := i.disallow[name]; ok {
			disallowMatched++
		}
		if Eligible(name, i.disallow) {
			fleet.Eligible = append(fleet.Eligible, container)
		} else {
			fleet.Excluded = append(fleet.Excluded, container)
		}
	}

	if len(i.disallow) > 0 && disallowMatched == 0 {
		i.logger.Warn("disallowlist matched no containers; relying on built-in infrastructure exclusions",
			slog.Int("entries", len(i.disallow)))
	}

	sort.Slice(fleet.Eligible, func(a, b int) bool { return fleet.Eligible[a].Name < fleet.Eligible[b].Name })
	return fleet, nil
}

// EnsureRunning restarts eligible containers that are not currently running,
// guaranteeing a full population before a chaos window samples its kill set.
// A container that cannot be restored is dropped from this window's eligible
// set rather than aborting the experiment.
func (i *Inspector) EnsureRunning(ctx context.Context, fleet Fleet) Fleet {
	restored := Fleet{Excluded: fleet.Excluded}
	for _, container := range fleet.Eligible {
		if container.State == models.StateRunning {
			restored.Eligible = append(restored.Eligible, container)
			continue
		}
		if err := i.platform.StartContainer(ctx, container.ID); err != nil {
			i.logger.Warn("could not restore container before window; dropping from eligible set",
				slog.String("container", container.Name), slog.Any("error", err))
			continue
		}
		detail, err := i.platform.InspectContainer(ctx, container.ID)
		if err != nil || models.ParseContainerState(detail.State.Status) != models.StateRunning {
			i.logger.Warn("container did not reach running state; dropping from eligible set",
				slog.String("container", container.Name), slog.Any("error", err))
			continue
		}
		container.State = models.StateRunning
		restored.Eligible = append(restored.Eligible, container)
	}
	return restored
}

// Services collapses the fleet into unique Service records with category and
// eligibility resolved.
func (f Fleet) Services() []models.Service {
	seen := make(map[string]struct{})
	var services []models.Service
	add := func(containers []models.Container, eligible bool) {
		for _, c := range containers {
			if _, ok := seen[c.Service]; ok {
				continue
			}
			seen[c.Service] = struct{}{}
			services = append(services, models.Service{
				Name:     c.Service,
				Category: Classify(c.Service),
				Eligible: eligible,
			})
		}
	}
	add(f.Eligible, true)
	add(f.Excluded, false)
	sort.Slice(services, func(a, b int) bool { return services[a].Name < services[b].Name })
	return services
}
