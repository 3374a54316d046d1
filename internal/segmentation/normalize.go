package segmentation

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"mart-segments/internal/models"
)

const (
	FatLow     = "Low Fat"
	FatRegular = "Regular"
)

// fatContentAliases maps case-folded spellings onto the two canonical values.
var fatContentAliases = map[string]string{
	"low fat": FatLow,
	"lf":      FatLow,
	"reg":     FatRegular,
	"regular": FatRegular,
}

type NormalizeReport struct {
	Rewritten int      `json:"rewritten"`
	Unknown   []string `json:"unknown,omitempty"`
}

// NormalizeRecords returns a copy of records with the fat-content field
// canonicalised. Row count and order are preserved and the input slice is not
// touched. Values outside the alias table pass through and are listed in the
// report.
func NormalizeRecords(records []models.Transaction) ([]models.Transaction, NormalizeReport) {
	fold := cases.Fold()
	out := make([]models.Transaction, len(records))
	var report NormalizeReport
	unknown := make(map[string]struct{})

	for i, tx := range records {
		raw := tx.ItemFatContent
		canonical, ok := fatContentAliases[fold.String(strings.TrimSpace(raw))]
		if ok {
			if canonical != raw {
				report.Rewritten++
			}
			tx.ItemFatContent = canonical
		} else {
			unknown[raw] = struct{}{}
		}
		out[i] = tx
	}

	for v := range unknown {
		report.Unknown = append(report.Unknown, v)
	}
	slices.Sort(report.Unknown)
	return out, report
}

// CanonicalFatContent maps a single raw value; ok is false for unknown values.
func CanonicalFatContent(raw string) (string, bool) {
	v, ok := fatContentAliases[cases.Fold().String(strings.TrimSpace(raw))]
	return v, ok
}
