package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/miradorstack/mirador-chaos/internal/models"
)

// LoadDisallowlist reads service names excluded from chaos, one per line.
// Blank lines and '#' comments are skipped; entries are normalized before
// matching. A missing file is fatal: the caller asked for it explicitly.
func LoadDisallowlist(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read disallowlist: %w", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, models.NormalizeService(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan disallowlist %s: %w", path, err)
	}
	return names, nil
}

// LoadReplicas reads the service-to-replica-count map from a JSON file. An
// empty path yields an empty map; absent services default to 1 downstream.
func LoadReplicas(path string) (map[string]int, error) {
	if path == "" {
		return map[string]int{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read replicas file: %w", err)
	}
	var raw map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse replicas file %s: %w", path, err)
	}
	replicas := make(map[string]int, len(raw))
	for name, count := range raw {
		if count < 1 {
			return nil, fmt.Errorf("replica count for %q must be positive, got %d", name, count)
		}
		replicas[models.NormalizeService(name)] = count
	}
	return replicas, nil
}
