package models

import "strings"

// ServiceCategory classifies a logical service for chaos eligibility.
type ServiceCategory string

const (
	CategoryEntrypoint     ServiceCategory = "entrypoint"
	CategoryInfrastructure ServiceCategory = "infrastructure"
	CategoryApplication    ServiceCategory = "application"
)

// Service is a logical service observed on the container platform. Name is
// always in normalized form (see NormalizeService).
type Service struct {
	Name     string
	Category ServiceCategory
	Eligible bool
}

// ContainerState enumerates the lifecycle states we care about. Anything the
// platform reports outside this set maps to StateUnknown.
type ContainerState string

const (
	StateRunning ContainerState = "running"
	StateExited  ContainerState = "exited"
	StateDead    ContainerState = "dead"
	StateUnknown ContainerState = "unknown"
)

// ParseContainerState maps a raw platform state string onto ContainerState.
func ParseContainerState(raw string) ContainerState {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "running":
		return StateRunning
	case "exited":
		return StateExited
	case "dead":
		return StateDead
	default:
		return StateUnknown
	}
}

// Container is one running instance of a Service. Containers are owned by
// the platform; this system only observes and stops/starts them.
type Container struct {
	ID      string
	Name    string
	Service string
	State   ContainerState
}

// Transport classifies how a dependency edge is traversed.
type Transport string

const (
	TransportSync  Transport = "sync"
	TransportAsync Transport = "async"
)

// Mode selects the blocking semantics used when evaluating reachability.
type Mode string

const (
	ModeBlocking    Mode = "blocking"
	ModeNonBlocking Mode = "non-blocking"
)

// ParseMode validates a mode string from CLI flags or artifact keys.
func ParseMode(raw string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeBlocking:
		return ModeBlocking, true
	case ModeNonBlocking:
		return ModeNonBlocking, true
	}
	return "", false
}

// NormalizeService canonicalizes a raw service or container label: trimmed,
// case-folded, underscores unified to dashes, a trailing compose replica
// index removed, and common service-name suffixes stripped. "CartService_1"
// and "cartservice" both normalize to "cart".
func NormalizeService(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.Trim(s, "/")
	if i := strings.LastIndex(s, "-"); i > 0 && isDigits(s[i+1:]) {
		s = s[:i]
	}
	for _, suffix := range []string{"-service", "service"} {
		if strings.HasSuffix(s, suffix) && len(s) > len(suffix) {
			s = strings.TrimSuffix(s, suffix)
			break
		}
	}
	return s
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
