// Package scoring maps a notice and a company profile to a bounded fit
// score and provides the cheap pre-filter applied before any detail fetch
// or semantic lookup. All functions are pure.
package scoring

// Profile describes what the company is looking for. It is loaded once from
// configuration and immutable for the duration of a run.
type Profile struct {
	Keywords                  []string  `mapstructure:"keywords"`
	UNSPSCCodes               []string  `mapstructure:"unspsc-codes"`
	Geography                 Geography `mapstructure:"geography"`
	PreferredProcurementTypes []string  `mapstructure:"preferred-procurement-types"`
	PreferredAgencies         []string  `mapstructure:"preferred-agencies"`
	RequiredQualifications    []string  `mapstructure:"required-qualifications"`
	MinContractValue          float64   `mapstructure:"min-contract-value"`
	MaxContractValue          float64   `mapstructure:"max-contract-value"`
	DeadlineMinDays           int       `mapstructure:"deadline-min-days"`
}

// Geography is the allow-list side of geography scoring: country codes for
// exact matching and free-text region names for the substring fallback.
type Geography struct {
	Countries []string `mapstructure:"countries"`
	Regions   []string `mapstructure:"regions"`
}
