package report

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
)

// The location of a report relative to a results root: <backend>/<node count>/<workload>.json
func RelativePath(rep *BenchmarkReport) string {
	return path.Join(rep.BackendName, strconv.Itoa(rep.ClusterSize), rep.WorkloadName+".json")
}

func Marshal(rep *BenchmarkReport) ([]byte, error) {
	return json.MarshalIndent(rep, "", "  ")
}

// Writes the report under dir and returns the file path.
func Save(dir string, rep *BenchmarkReport) (string, error) {
	p := filepath.Join(dir, filepath.FromSlash(RelativePath(rep)))
	err := os.MkdirAll(filepath.Dir(p), fs.ModePerm)
	if err != nil {
		return "", fmt.Errorf("creating results dir failed: %w", err)
	}

	buf, err := Marshal(rep)
	if err != nil {
		return "", err
	}
	err = os.WriteFile(p, buf, 0o644)
	if err != nil {
		return "", fmt.Errorf("writing report failed: %w", err)
	}
	slog.Info("saved report", slog.String("path", p))
	return p, nil
}
