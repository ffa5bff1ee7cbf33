package collector

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	FuzzerStatsFile = "fuzzer_stats"
	CrashesDir      = "crashes"
)

// parseFuzzerStats reads AFL-style "key : value" lines. Numeric values are kept
// as numbers so they land in the result metric as such.
func parseFuzzerStats(r io.Reader) (map[string]any, error) {
	stats := make(map[string]any)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			stats[key] = i
		} else if f, err := strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64); err == nil {
			stats[key] = f
		} else {
			stats[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}
	return stats, nil
}

func readFuzzerStats(dir string) (map[string]any, error) {
	f, err := os.Open(filepath.Join(dir, FuzzerStatsFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseFuzzerStats(f)
}

// countCrashes counts crashing inputs saved by the fuzzer, ignoring AFL's README.
func countCrashes(dir string) int {
	entries, err := os.ReadDir(filepath.Join(dir, CrashesDir))
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == "README.txt" {
			continue
		}
		count++
	}
	return count
}
