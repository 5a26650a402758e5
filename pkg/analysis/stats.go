package analysis

import (
	"fmt"

	"github.com/northcutted/dock-lens/pkg/types"
)

// StatusLine summarises the total vulnerabilities of a report, e.g.
// "C 1  H 4  M 10  L 2  N 0".
func StatusLine(report *types.Report) string {
	var c types.SeverityCounts
	if report != nil {
		c = report.Result.VulnTotalBySeverity
	}
	return fmt.Sprintf("C %d  H %d  M %d  L %d  N %d", c.Critical, c.High, c.Medium, c.Low, c.Negligible)
}
