package pipeline

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/tenderscout/tenderscout/internal/storage"
)

func storedNotice(id, agency string, score int) *storage.StoredNotice {
	return &storage.StoredNotice{Notice: storage.Notice{ID: id, Agency: agency, FitScore: score}}
}

func TestReportByAgencyOrdersByVolume(t *testing.T) {
	result := &Result{Stored: []*storage.StoredNotice{
		storedNotice("a", "UNICEF", 80),
		storedNotice("b", "WFP", 60),
		storedNotice("c", "WFP", 90),
		storedNotice("d", "", 40),
	}}

	report := result.ReportByAgency()
	lines := strings.Split(report, "\n")
	if len(lines) != 3 {
		t.Fatalf("report lines = %d, want 3:\n%s", len(lines), report)
	}
	if !strings.HasPrefix(lines[0], "WFP") {
		t.Fatalf("first line = %q, want the busiest agency first", lines[0])
	}
	if !strings.Contains(lines[0], "best score 90") {
		t.Fatalf("first line = %q, want best score 90", lines[0])
	}
	if !strings.Contains(report, "(unknown agency)") {
		t.Fatalf("report should label notices without an agency:\n%s", report)
	}
}

func TestReportByAgencyEmpty(t *testing.T) {
	report := (&Result{}).ReportByAgency()
	if report != "no notices stored" {
		t.Fatalf("report = %q", report)
	}
}

func TestDumpToTmpFile(t *testing.T) {
	result := &Result{Stored: []*storage.StoredNotice{
		storedNotice("n1", "UNICEF", 72),
	}}

	path, err := result.DumpToTmpFile()
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("dump is not valid JSON: %v", err)
	}
	if len(decoded) != 1 || decoded[0]["ID"] != "n1" {
		t.Fatalf("decoded dump = %v", decoded)
	}
}
