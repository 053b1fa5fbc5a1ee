package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/tenderscout/tenderscout/internal/storage"
)

// Result is the outcome of one run. Stored is ordered by fit score,
// highest first.
type Result struct {
	Searched int
	Skipped  int
	Filtered int
	Failed   int
	Stored   []*storage.StoredNotice
}

// ReportByAgency renders a per-agency summary of the stored notices,
// busiest agency first.
func (r *Result) ReportByAgency() string {
	if len(r.Stored) == 0 {
		return "no notices stored"
	}

	counts := make(map[string]int)
	best := make(map[string]int)
	for _, n := range r.Stored {
		agency := n.Agency
		if agency == "" {
			agency = "(unknown agency)"
		}
		counts[agency]++
		if n.FitScore > best[agency] {
			best[agency] = n.FitScore
		}
	}

	agencies := make([]string, 0, len(counts))
	for agency := range counts {
		agencies = append(agencies, agency)
	}
	sort.Slice(agencies, func(i, j int) bool {
		if counts[agencies[i]] != counts[agencies[j]] {
			return counts[agencies[i]] > counts[agencies[j]]
		}
		return agencies[i] < agencies[j]
	})

	var b strings.Builder
	for _, agency := range agencies {
		fmt.Fprintf(&b, "%-40s %3d notices, best score %d\n", agency, counts[agency], best[agency])
	}
	return strings.TrimRight(b.String(), "\n")
}

// DumpToTmpFile writes the stored notices as indented JSON to a temp file
// and returns its path.
func (r *Result) DumpToTmpFile() (string, error) {
	f, err := os.CreateTemp("", "tenderscout-*.json")
	if err != nil {
		return "", fmt.Errorf("create dump file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r.Stored); err != nil {
		return "", fmt.Errorf("write dump file %s: %w", f.Name(), err)
	}

	return f.Name(), nil
}
