package registry

import (
	"strings"

	"golang.org/x/mod/semver"
)

// SelectActive returns the active record for moduleID. Inactive records are
// skipped. When more than one active record matches, the highest semantic
// version wins; versions that are not valid semver rank below valid ones,
// and remaining ties go to the earliest record.
func SelectActive(records []Descriptor, moduleID string) (*Descriptor, bool) {
	if moduleID == "" {
		return nil, false
	}

	best := -1
	for i := range records {
		r := &records[i]
		if r.ModuleID != moduleID || !r.IsActive {
			continue
		}
		if best < 0 || compareVersions(r.Version, records[best].Version) > 0 {
			best = i
		}
	}
	if best < 0 {
		return nil, false
	}

	d := records[best]
	return &d, true
}

// compareVersions orders two version strings: valid semver by precedence,
// valid before invalid, and everything else equal.
func compareVersions(a, b string) int {
	ca, cb := canonical(a), canonical(b)
	switch {
	case ca != "" && cb != "":
		return semver.Compare(ca, cb)
	case ca != "":
		return 1
	case cb != "":
		return -1
	default:
		return 0
	}
}

// canonical accepts "1.2.3" as well as "v1.2.3".
func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return v
}
