package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"stakesim/internal/model"
)

const (
	runIndexFile   = "run_index.json"
	configFile     = "config.json"
	summariesFile  = "summaries.json"
	roundSeriesCSV = "rounds.csv"
)

// indexMu serializes run index rewrites within the process.
var indexMu sync.Mutex

// RunConfig is the reproducible description of a run as written next to its
// artifacts.
type RunConfig struct {
	RunID            string    `json:"run_id"`
	Controller       string    `json:"controller"`
	ControllerAlpha  float64   `json:"controller_alpha"`
	ControllerAlphas []float64 `json:"controller_alphas,omitempty"`
	Rebalancer       string    `json:"rebalancer"`
	NumValidators    int       `json:"num_validators"`
	HonestRatio      float64   `json:"honest_ratio"`
	InitialAlpha     float64   `json:"initial_alpha"`
	Rounds           int       `json:"rounds"`
	Episodes         int       `json:"episodes"`
	Seed             int64     `json:"seed"`
	DeltaScale       float64   `json:"delta_scale"`
	Gain             float64   `json:"gain"`
	Offset           float64   `json:"offset"`
}

type RunArtifacts struct {
	Config    RunConfig              `json:"config"`
	Summaries []model.EpisodeSummary `json:"summaries"`
	Rounds    []model.RoundRecord    `json:"rounds"`
}

type RunIndexEntry struct {
	RunID                     string  `json:"run_id"`
	Controller                string  `json:"controller"`
	Rebalancer                string  `json:"rebalancer"`
	NumValidators             int     `json:"num_validators"`
	Episodes                  int     `json:"episodes"`
	Seed                      int64   `json:"seed"`
	MeanFinalHonestProportion float64 `json:"mean_final_honest_proportion"`
	StdFinalHonestProportion  float64 `json:"std_final_honest_proportion"`
	MeanTotalFeedback         float64 `json:"mean_total_feedback"`
	CreatedAtUTC              string  `json:"created_at_utc"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, summariesFile), artifacts.Summaries); err != nil {
		return "", err
	}
	if err := WriteRoundSeries(runDir, artifacts.Rounds); err != nil {
		return "", err
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	indexMu.Lock()
	defer indexMu.Unlock()

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns index entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// later appends win ties
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{configFile, summariesFile, roundSeriesCSV} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	if err != nil || !ok {
		return RunConfig{}, ok, err
	}
	return cfg, true, nil
}

func ReadSummaries(baseDir, runID string) ([]model.EpisodeSummary, bool, error) {
	var summaries []model.EpisodeSummary
	ok, err := readJSON(filepath.Join(baseDir, runID, summariesFile), &summaries)
	if err != nil || !ok {
		return nil, ok, err
	}
	return summaries, true, nil
}

func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = strings.TrimSpace(runID)
	}
	if cfg.RunID != strings.TrimSpace(runID) {
		return fmt.Errorf("run config run id mismatch: got=%s want=%s", cfg.RunID, strings.TrimSpace(runID))
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, configFile), cfg)
}

func readJSON(path string, value any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
