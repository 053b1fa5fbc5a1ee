package pipeline

import (
	"fmt"
	"strings"

	"github.com/tenderscout/tenderscout/internal/scoring"
	"github.com/tenderscout/tenderscout/internal/semantic"
	"github.com/tenderscout/tenderscout/internal/ungm"
)

// buildExplanation writes the short fit rationale attached to stored
// notices. Pieces appear in a fixed order and absent signals are simply
// omitted: agency experience, procurement-type fit, geography overlap, the
// top similar prior work, and the score statement.
func buildExplanation(notice *ungm.Notice, profile *scoring.Profile, matches []semantic.Match, total int) string {
	var parts []string

	if notice.Agency != "" && containsFold(profile.PreferredAgencies, notice.Agency) {
		parts = append(parts, fmt.Sprintf("Prior experience with %s.", notice.Agency))
	}

	if notice.ProcurementType != "" && containsFold(profile.PreferredProcurementTypes, notice.ProcurementType) {
		parts = append(parts, fmt.Sprintf("Preferred procurement type (%s).", notice.ProcurementType))
	}

	if overlap := countryOverlap(notice, profile); len(overlap) > 0 {
		parts = append(parts, fmt.Sprintf("Operates in target countries: %s.", strings.Join(overlap, ", ")))
	}

	if titles := topSourceTitles(matches, 2); len(titles) > 0 {
		parts = append(parts, fmt.Sprintf("Similar past work: %s.", strings.Join(titles, "; ")))
	}

	parts = append(parts, fmt.Sprintf("Overall fit score %d/100.", total))

	return strings.Join(parts, " ")
}

// countryOverlap returns the display names of the notice countries that are
// in the profile's country list, in notice order.
func countryOverlap(notice *ungm.Notice, profile *scoring.Profile) []string {
	if len(profile.Geography.Countries) == 0 {
		return nil
	}
	var overlap []string
	for _, c := range notice.Countries {
		if c.Code == "" || !containsFold(profile.Geography.Countries, c.Code) {
			continue
		}
		name := c.Name
		if name == "" {
			name = c.Code
		}
		overlap = append(overlap, name)
	}
	return overlap
}

func topSourceTitles(matches []semantic.Match, limit int) []string {
	var titles []string
	for _, m := range matches {
		if m.SourceTitle == "" {
			continue
		}
		titles = append(titles, m.SourceTitle)
		if len(titles) == limit {
			break
		}
	}
	return titles
}

func containsFold(values []string, value string) bool {
	for _, v := range values {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}
