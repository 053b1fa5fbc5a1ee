package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/tenderscout/tenderscout/internal/ungm"
)

// Component weights. They sum to 115 with semantic input and 100 without;
// the final score is clamped to [0, 100] either way.
const (
	maxKeywordPoints       = 25
	pointsPerKeyword       = 5
	maxUNSPSCPoints        = 20
	unspscPrefixLen        = 4
	countryMatchPoints     = 15
	regionFallbackPoints   = 10
	agencyMatchPoints      = 10
	typeMatchPoints        = 10
	maxDeadlinePoints      = 10
	maxQualificationPoints = 5
	pointsPerQualification = 2
	budgetFitPoints        = 5
	maxSemanticPoints      = 15
)

// Score computes the fit score for a notice against the profile. When
// similarity is nil the semantic component contributes nothing (the
// "structured" score); otherwise similarity is clamped to [0, 1] and
// weighted in (the "total" score). The result is floored to an integer and
// clamped to [0, 100].
func Score(notice *ungm.Notice, profile *Profile, similarity *float64, now time.Time) int {
	score := 0.0

	title := strings.ToLower(notice.Title)
	body := strings.ToLower(notice.BodyText())

	score += keywordPoints(title, body, profile.Keywords)
	score += unspscPoints(notice.UNSPSC, profile.UNSPSCCodes)
	score += geographyPoints(notice, profile, body)

	if contains(profile.PreferredAgencies, notice.Agency) {
		score += agencyMatchPoints
	}

	if contains(profile.PreferredProcurementTypes, notice.ProcurementType) {
		score += typeMatchPoints
	}

	score += deadlinePoints(notice, profile, now)
	score += qualificationPoints(body, profile.RequiredQualifications)
	score += budgetPoints(notice, profile)

	if similarity != nil {
		score += maxSemanticPoints * clamp01(*similarity)
	}

	final := int(math.Floor(score))
	if final < 0 {
		return 0
	}
	if final > 100 {
		return 100
	}
	return final
}

func keywordPoints(title, body string, keywords []string) float64 {
	hits := 0
	for _, keyword := range keywords {
		kw := strings.ToLower(keyword)
		if kw == "" {
			continue
		}
		if strings.Contains(title, kw) || strings.Contains(body, kw) {
			hits++
		}
	}
	return math.Min(maxKeywordPoints, float64(hits*pointsPerKeyword))
}

// unspscPoints scores the overlap of classification codes, prefix-matched
// to four characters, proportional to how much of the profile is covered.
func unspscPoints(codes []ungm.UNSPSC, profileCodes []string) float64 {
	if len(profileCodes) == 0 {
		return 0
	}

	noticeSet := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if code.Code == "" {
			continue
		}
		noticeSet[prefix(code.Code)] = struct{}{}
	}

	profileSet := make(map[string]struct{}, len(profileCodes))
	for _, code := range profileCodes {
		if code == "" {
			continue
		}
		profileSet[prefix(code)] = struct{}{}
	}
	if len(profileSet) == 0 {
		return 0
	}

	overlap := 0
	for code := range profileSet {
		if _, ok := noticeSet[code]; ok {
			overlap++
		}
	}

	return maxUNSPSCPoints * float64(overlap) / float64(len(profileSet))
}

// geographyPoints awards the full weight on a country-code intersection.
// The region-name substring fallback only applies when the country match
// was never attempted, i.e. when the notice carries no country data or the
// profile has no country allow-list. Countries that exist but fail to
// intersect score zero.
func geographyPoints(notice *ungm.Notice, profile *Profile, body string) float64 {
	noticeCountries := notice.CountryCodes()
	targetCountries := profile.Geography.Countries

	if len(noticeCountries) > 0 && len(targetCountries) > 0 {
		for _, code := range targetCountries {
			if _, ok := noticeCountries[code]; ok {
				return countryMatchPoints
			}
		}
		return 0
	}

	for _, region := range profile.Geography.Regions {
		if region == "" {
			continue
		}
		if strings.Contains(body, strings.ToLower(region)) {
			return regionFallbackPoints
		}
	}

	return 0
}

func deadlinePoints(notice *ungm.Notice, profile *Profile, now time.Time) float64 {
	days, ok := notice.DaysToDeadline(now)
	if !ok || days < profile.DeadlineMinDays {
		return 0
	}
	if days < 0 {
		return 0
	}
	return math.Min(maxDeadlinePoints, float64(days))
}

func qualificationPoints(body string, qualifications []string) float64 {
	hits := 0
	for _, qualification := range qualifications {
		q := strings.ToLower(qualification)
		if q == "" {
			continue
		}
		if strings.Contains(body, q) {
			hits++
		}
	}
	return math.Min(maxQualificationPoints, float64(hits*pointsPerQualification))
}

func budgetPoints(notice *ungm.Notice, profile *Profile) float64 {
	min, max, ok := notice.BudgetRange()
	if !ok {
		return 0
	}
	if min >= profile.MinContractValue && max <= profile.MaxContractValue {
		return budgetFitPoints
	}
	return 0
}

func contains(values []string, value string) bool {
	if value == "" {
		return false
	}
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

func prefix(code string) string {
	if len(code) > unspscPrefixLen {
		return code[:unspscPrefixLen]
	}
	return code
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
