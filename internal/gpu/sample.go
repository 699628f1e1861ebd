// Package gpu runs nvidia-smi on a target and turns its output into a Sample.
package gpu

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// QueryCommand asks nvidia-smi for utilization, used memory and total
// memory, one CSV line per GPU.
const QueryCommand = "nvidia-smi --query-gpu=utilization.gpu,memory.used,memory.total --format=csv,noheader"

// Sample is one target's GPU reading. Memory figures are MiB.
type Sample struct {
	Target            string  `json:"target"`
	JumpHost          string  `json:"jump_host"`
	Utilization       int64   `json:"gpu_utilization"`
	MemoryUsed        int64   `json:"memory_used"`
	MemoryTotal       int64   `json:"memory_total"`
	MemoryLeft        int64   `json:"memory_left"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
}

// PercentString formats MemoryUsedPercent with two decimals.
func (s *Sample) PercentString() string {
	return strconv.FormatFloat(s.MemoryUsedPercent, 'f', 2, 64)
}

// ParseError means the probe output didn't contain a usable reading.
type ParseError struct {
	Target string
	Output string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("can't parse nvidia-smi output from %s: %s (got %q)", e.Target, e.Reason, truncate(e.Output, 80))
}

// Suggestion explains the usual causes.
func (e *ParseError) Suggestion() string {
	return fmt.Sprintf("Run '%s' on %s by hand. The NVIDIA driver may not be loaded.", QueryCommand, e.Target)
}

var numberRe = regexp.MustCompile(`\d+`)

// Parse reads utilization, used memory and total memory from the first
// three non-negative integers in output, in order. On multi-GPU hosts that
// is the first GPU. Derived fields are filled in.
func Parse(target, output string) (*Sample, error) {
	tokens := numberRe.FindAllString(output, 3)
	if len(tokens) < 3 {
		return nil, &ParseError{Target: target, Output: output,
			Reason: fmt.Sprintf("expected 3 numbers, found %d", len(tokens))}
	}

	var vals [3]int64
	for i, tok := range tokens {
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return nil, &ParseError{Target: target, Output: output, Reason: err.Error()}
		}
		vals[i] = v
	}
	util, used, total := vals[0], vals[1], vals[2]

	switch {
	case total == 0:
		return nil, &ParseError{Target: target, Output: output, Reason: "total memory is 0"}
	case used > total:
		return nil, &ParseError{Target: target, Output: output,
			Reason: fmt.Sprintf("used memory %d exceeds total %d", used, total)}
	case util > 100:
		return nil, &ParseError{Target: target, Output: output,
			Reason: fmt.Sprintf("utilization %d%% is over 100", util)}
	}

	return &Sample{
		Target:            target,
		Utilization:       util,
		MemoryUsed:        used,
		MemoryTotal:       total,
		MemoryLeft:        total - used,
		MemoryUsedPercent: float64(used) / float64(total) * 100,
	}, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
