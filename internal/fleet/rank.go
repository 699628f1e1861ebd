package fleet

import (
	"sort"
)

// Row is one ranked, display-ready sample.
type Row struct {
	Target      string `json:"target"`
	JumpHost    string `json:"jump_host"`
	Utilization int64  `json:"gpu_utilization"`
	MemoryUsed  int64  `json:"memory_used"`
	MemoryTotal int64  `json:"memory_total"`
	MemoryLeft  int64  `json:"memory_left"`
	// PercentUsed is memory_used_percent with two decimals, e.g. "25.00".
	PercentUsed string `json:"memory_used_percent"`
}

// Report is the ranked view of one poll.
type Report struct {
	Rows     []Row
	Failures []Outcome
	Total    int
}

// Rank keeps successful outcomes and sorts them by memory left, most
// first. Ties keep arrival order. Failures are kept separately, sorted by
// target name.
func Rank(outcomes []Outcome) Report {
	report := Report{Total: len(outcomes)}

	for _, o := range outcomes {
		if !o.OK() {
			report.Failures = append(report.Failures, o)
			continue
		}
		s := o.Sample
		report.Rows = append(report.Rows, Row{
			Target:      o.Target,
			JumpHost:    o.JumpHost,
			Utilization: s.Utilization,
			MemoryUsed:  s.MemoryUsed,
			MemoryTotal: s.MemoryTotal,
			MemoryLeft:  s.MemoryLeft,
			PercentUsed: s.PercentString(),
		})
	}

	sort.SliceStable(report.Rows, func(i, j int) bool {
		return report.Rows[i].MemoryLeft > report.Rows[j].MemoryLeft
	})
	sort.SliceStable(report.Failures, func(i, j int) bool {
		return report.Failures[i].Target < report.Failures[j].Target
	})

	return report
}

// Complete reports whether every target produced a sample.
func (r Report) Complete() bool {
	return len(r.Failures) == 0
}
