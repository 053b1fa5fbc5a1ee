package scoring

import (
	"time"

	"github.com/tenderscout/tenderscout/internal/ungm"
)

// ShouldFilter reports whether a notice should be excluded before scoring
// and before any semantic lookup. Checks run in priority order and any hit
// filters: too few days to the deadline, a procurement type outside the
// preferred set, and no intersection with the country allow-list when both
// sides carry country data.
func ShouldFilter(notice *ungm.Notice, profile *Profile, now time.Time) bool {
	if days, ok := notice.DaysToDeadline(now); ok && days < profile.DeadlineMinDays {
		return true
	}

	if len(profile.PreferredProcurementTypes) > 0 {
		if !contains(profile.PreferredProcurementTypes, notice.ProcurementType) {
			return true
		}
	}

	if len(profile.Geography.Countries) > 0 {
		noticeCountries := notice.CountryCodes()
		if len(noticeCountries) > 0 {
			matched := false
			for _, code := range profile.Geography.Countries {
				if _, ok := noticeCountries[code]; ok {
					matched = true
					break
				}
			}
			if !matched {
				return true
			}
		}
	}

	return false
}
