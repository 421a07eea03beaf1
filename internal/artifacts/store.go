package artifacts

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/miradorstack/mirador-chaos/internal/graph"
	"github.com/miradorstack/mirador-chaos/internal/models"
)

// Store reads and writes the per-run JSON artifacts under one output
// directory. The chaos window log is the only raw-evidence artifact; graphs,
// estimates, live windows and comparisons are derived and recomputable.
type Store struct {
	logger *slog.Logger
	dir    string
}

// NewStore creates the output directory if needed and returns a Store.
func NewStore(logger *slog.Logger, dir string) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts directory: %w", err)
	}
	return &Store{logger: logger, dir: dir}, nil
}

// Dir returns the output directory.
func (s *Store) Dir() string { return s.dir }

// SaveGraph persists the dependency graph as graph.json.
func (s *Store) SaveGraph(g *graph.Graph) error {
	return s.writeJSON("graph.json", g)
}

// LoadGraph reads graph.json and prepares it for evaluation.
func (s *Store) LoadGraph() (*graph.Graph, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, "graph.json"))
	if err != nil {
		return nil, fmt.Errorf("read graph artifact: %w", err)
	}
	var g graph.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode graph artifact: %w", err)
	}
	if err := g.Prepare(); err != nil {
		return nil, fmt.Errorf("prepare graph artifact: %w", err)
	}
	return &g, nil
}

// WindowLogPath returns the append-only chaos log path for one failure
// fraction.
func (s *Store) WindowLogPath(p float64) string {
	return filepath.Join(s.dir, fmt.Sprintf("window_log_p%s.jsonl", pLabel(p)))
}

// LoadChaosWindows reads the chaos log for p. Unparseable lines are skipped
// with a warning so one corrupt record never hides a whole run.
func (s *Store) LoadChaosWindows(p float64) ([]models.ChaosWindow, error) {
	file, err := os.Open(s.WindowLogPath(p))
	if err != nil {
		return nil, fmt.Errorf("open window log: %w", err)
	}
	defer file.Close()

	var windows []models.ChaosWindow
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var w models.ChaosWindow
		if err := json.Unmarshal([]byte(text), &w); err != nil {
			s.logger.Warn("skipping unparseable window record",
				slog.Int("line", line), slog.Any("error", err))
			continue
		}
		windows = append(windows, w)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan window log: %w", err)
	}
	return windows, nil
}

// SaveModelEstimate writes one estimate; the mix aggregate drops the
// endpoint suffix.
func (s *Store) SaveModelEstimate(est models.ModelEstimate) error {
	name := fmt.Sprintf("model_%s_p%s.json", est.Mode, pLabel(est.PFail))
	if est.Endpoint != models.MixEndpoint {
		name = fmt.Sprintf("model_%s_p%s_%s.json", est.Mode, pLabel(est.PFail), endpointLabel(est.Endpoint))
	}
	return s.writeJSON(name, est)
}

// LoadModelEstimates reads every persisted model estimate, across modes,
// failure fractions and endpoints.
func (s *Store) LoadModelEstimates() ([]models.ModelEstimate, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "model_*.json"))
	if err != nil {
		return nil, fmt.Errorf("list model artifacts: %w", err)
	}
	var estimates []models.ModelEstimate
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read model artifact %s: %w", filepath.Base(path), err)
		}
		var est models.ModelEstimate
		if err := json.Unmarshal(data, &est); err != nil {
			return nil, fmt.Errorf("decode model artifact %s: %w", filepath.Base(path), err)
		}
		estimates = append(estimates, est)
	}
	return estimates, nil
}

// SaveLiveWindow writes one measured window.
func (s *Store) SaveLiveWindow(w models.LiveWindow) error {
	name := fmt.Sprintf("live_p%s_w%d.json", pLabel(w.PFail), w.Window)
	return s.writeJSON(name, w)
}

// LoadLiveWindows reads every live window measured at failure fraction p.
func (s *Store) LoadLiveWindows(p float64) ([]models.LiveWindow, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, fmt.Sprintf("live_p%s_w*.json", pLabel(p))))
	if err != nil {
		return nil, fmt.Errorf("list live artifacts: %w", err)
	}
	var windows []models.LiveWindow
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read live artifact %s: %w", filepath.Base(path), err)
		}
		var w models.LiveWindow
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode live artifact %s: %w", filepath.Base(path), err)
		}
		windows = append(windows, w)
	}
	return windows, nil
}

// SaveComparisons writes the comparison report for one (p, endpoint): all
// aggregations for that pair live in one file.
func (s *Store) SaveComparisons(p float64, endpoint string, results []models.ComparisonResult) error {
	name := fmt.Sprintf("compare_p%s_%s.json", pLabel(p), endpointLabel(endpoint))
	return s.writeJSON(name, results)
}

func (s *Store) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// pLabel renders a failure fraction compactly and stably for file names.
func pLabel(p float64) string {
	return strconv.FormatFloat(p, 'g', -1, 64)
}

// endpointLabel makes an endpoint name filesystem-safe.
func endpointLabel(endpoint string) string {
	label := strings.ToLower(endpoint)
	label = strings.ReplaceAll(label, "/", "_")
	label = strings.ReplaceAll(label, " ", "_")
	return strings.Trim(label, "_")
}
