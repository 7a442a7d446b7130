package submitter

import (
	"strings"

	"github.com/defensio-labs/coredrill/internal/domain"
)

// classificationTable is spec.md §7's substring-to-status translation,
// kept in one place per spec.md §9's explicit design note ("Encapsulate
// in one translation table keyed by substrings; do not scatter matches").
// Order matters: the first matching substring wins.
var classificationTable = []struct {
	substr string
	status string
}{
	{"deadline has elapsed", domain.StatusFailedDeadlineExceeded},
	{"timed out", domain.StatusFailedTimeout},
	{"timeout", domain.StatusFailedTimeout},
	{"Solution already exists", domain.StatusFailedSolutionExists},
	{"Challenge window closed", domain.StatusFailedSubmissionWindow},
}

// classifySubmitError maps a submission failure's error text to spec.md
// §7's status codes. Anything unrecognized becomes
// failed_to_submit_general. This deliberately preserves the Open Question
// in spec.md §9: "Solution already exists" is classified as a failure,
// not remapped to "submitted".
func classifySubmitError(err error) string {
	msg := err.Error()
	for _, rule := range classificationTable {
		if strings.Contains(msg, rule.substr) {
			return rule.status
		}
	}
	return domain.StatusFailedGeneral
}
