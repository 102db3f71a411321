package dataverse

import (
	"sort"
	"strconv"
	"strings"

	"dvbox/internal/dverrors"
)

// allowedCustomHeaders is the full set of caller-supplied headers the
// façade will forward. Everything else is rejected.
var allowedCustomHeaders = map[string]struct{}{
	"mscrm.solutionuniquename": {},
	"mscrm.mergelabels":        {},
	"consistency":              {},
	"if-match":                 {},
	"if-none-match":            {},
}

// protectedHeaders are owned by the HTTP client; a caller supplying one
// is always an error even if a future allow-list change overlapped it.
var protectedHeaders = map[string]struct{}{
	"authorization":    {},
	"accept":           {},
	"content-type":     {},
	"odata-maxversion": {},
	"odata-version":    {},
	"prefer":           {},
	"content-length":   {},
}

// ValidateCustomHeaders enforces the allow-list, case-insensitively.
// Violations name every offender so the caller can fix them in one
// pass.
func ValidateCustomHeaders(headers map[string]string) error {
	var protected, unknown []string
	for name := range headers {
		lower := strings.ToLower(strings.TrimSpace(name))
		if _, bad := protectedHeaders[lower]; bad {
			protected = append(protected, name)
			continue
		}
		if _, ok := allowedCustomHeaders[lower]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(protected) == 0 && len(unknown) == 0 {
		return nil
	}

	sort.Strings(protected)
	sort.Strings(unknown)
	var parts []string
	if len(protected) > 0 {
		parts = append(parts, "protected: "+strings.Join(protected, ", "))
	}
	if len(unknown) > 0 {
		parts = append(parts, "not allowed: "+strings.Join(unknown, ", "))
	}
	return dverrors.Newf(dverrors.KindHeaderValidation,
		"custom headers rejected (%s)", strings.Join(parts, "; "))
}

// WriteOptions is the options bag metadata writes accept. Headers may
// carry additional allow-listed headers (If-Match and friends).
type WriteOptions struct {
	SolutionUniqueName string
	MergeLabels        *bool
	ConsistencyStrong  bool
	Headers            map[string]string
}

// headers translates the options into request headers. Updates default
// MergeLabels to true so label edits do not silently drop translations
// the caller did not resend.
func (o *WriteOptions) headers(forUpdate bool) (map[string]string, error) {
	out := map[string]string{}
	if o != nil {
		if err := ValidateCustomHeaders(o.Headers); err != nil {
			return nil, err
		}
		for name, value := range o.Headers {
			out[name] = value
		}
		if o.SolutionUniqueName != "" {
			out["MSCRM.SolutionUniqueName"] = o.SolutionUniqueName
		}
		if o.ConsistencyStrong {
			out["Consistency"] = "Strong"
		}
		if o.MergeLabels != nil {
			out["MSCRM.MergeLabels"] = strconv.FormatBool(*o.MergeLabels)
			return out, nil
		}
	}
	if forUpdate {
		out["MSCRM.MergeLabels"] = "true"
	}
	return out, nil
}
