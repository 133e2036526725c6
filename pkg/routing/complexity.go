// Package routing decides which adapter runs each workflow step.
//
// The router combines a pure complexity analysis of the step, the
// workflow policy, adapter availability, and optional performance
// history into a deterministic routing decision. It also plans safe
// parallel execution groups using file-scope conflict detection.
package routing

import (
	"io/fs"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tombee/dispatch/pkg/workflow"
)

// Factor weights and caps for the complexity score.
const (
	maxFileCountFactor     = 0.4
	maxFileSizeFactor      = 0.3
	maxOperationTypeFactor = 0.3
	maxConfigurationFactor = 0.2
	maxContextDepsFactor   = 0.2
)

// FactorBreakdown itemizes the weighted factors behind a score.
type FactorBreakdown struct {
	FileCount     float64 `json:"file_count"`
	FileSize      float64 `json:"file_size"`
	OperationType float64 `json:"operation_type"`
	Configuration float64 `json:"configuration"`
	ContextDeps   float64 `json:"context_deps"`
}

// Analysis is the result of analyzing one step's complexity.
type Analysis struct {
	// Score is the combined complexity in [0,1]
	Score float64 `json:"score"`

	// Factors itemizes the weighted contributions
	Factors FactorBreakdown `json:"factors"`

	// FileCount is the number of files the step's globs resolve to
	FileCount int `json:"file_count"`

	// EstimatedBytes is the estimated total size of those files
	EstimatedBytes int64 `json:"estimated_bytes"`

	// OperationType is the inferred operation category
	OperationType string `json:"operation_type"`

	// DeterministicConfidence estimates how well a deterministic
	// adapter would handle the step, in [0,1]
	DeterministicConfidence float64 `json:"deterministic_confidence"`
}

// Analyzer scores step complexity. It is a pure function over the step
// plus read-only globbing against the configured root.
type Analyzer struct {
	fsys fs.FS
}

// NewAnalyzer creates an analyzer that resolves file globs against the
// given filesystem. A nil fsys disables size sampling; globs then
// contribute the zero-file bucket.
func NewAnalyzer(fsys fs.FS) *Analyzer {
	return &Analyzer{fsys: fsys}
}

// Analyze scores a step. The score combines five weighted factors
// capped at 1.0; the derived deterministic confidence is boosted for
// read/format/lint operations and small file sets.
func (a *Analyzer) Analyze(step *workflow.Step) *Analysis {
	fileCount, totalBytes := a.resolveFiles(step.Files)
	opType := inferOperationType(step)

	factors := FactorBreakdown{
		FileCount:     fileCountFactor(fileCount),
		FileSize:      fileSizeFactor(totalBytes),
		OperationType: operationTypeFactor(opType),
		Configuration: configurationFactor(step.With),
		ContextDeps:   contextDepsFactor(step),
	}

	score := factors.FileCount + factors.FileSize + factors.OperationType +
		factors.Configuration + factors.ContextDeps
	if score > 1.0 {
		score = 1.0
	}

	confidence := 1.0 - score
	if confidence < 0 {
		confidence = 0
	}
	switch opType {
	case "read", "format", "lint":
		confidence += 0.2
	}
	if fileCount <= 5 && totalBytes < 50*1024 {
		confidence += 0.1
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	return &Analysis{
		Score:                   score,
		Factors:                 factors,
		FileCount:               fileCount,
		EstimatedBytes:          totalBytes,
		OperationType:           opType,
		DeterministicConfidence: confidence,
	}
}

// sizeSampleLimit caps per-pattern stat calls; larger match sets are
// scaled from the sample average.
const sizeSampleLimit = 5

// resolveFiles expands the step's globs and estimates total bytes,
// sampling up to sizeSampleLimit files per pattern and scaling.
func (a *Analyzer) resolveFiles(patterns workflow.FileList) (int, int64) {
	if a.fsys == nil || len(patterns) == 0 {
		return 0, 0
	}

	count := 0
	var totalBytes int64
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(a.fsys, pattern)
		if err != nil {
			continue
		}
		count += len(matches)

		var sampled int64
		sampleCount := 0
		for _, match := range matches {
			if sampleCount >= sizeSampleLimit {
				break
			}
			info, err := fs.Stat(a.fsys, match)
			if err != nil || info.IsDir() {
				continue
			}
			sampled += info.Size()
			sampleCount++
		}
		if sampleCount > 0 {
			avg := sampled / int64(sampleCount)
			totalBytes += avg * int64(len(matches))
		}
	}
	return count, totalBytes
}

// fileCountFactor buckets the resolved file count.
func fileCountFactor(count int) float64 {
	switch {
	case count == 0:
		return 0.1
	case count <= 3:
		return 0.2
	case count <= 10:
		return 0.3
	default:
		return maxFileCountFactor
	}
}

// fileSizeFactor buckets the estimated total size.
func fileSizeFactor(totalBytes int64) float64 {
	switch {
	case totalBytes < 10*1024:
		return 0.1
	case totalBytes < 100*1024:
		return 0.2
	default:
		return maxFileSizeFactor
	}
}

// operationKeywords orders matching from most to least complex so a
// step named "refactor and test" scores as a refactor.
var operationKeywords = []struct {
	op    string
	words []string
}{
	{"refactor", []string{"refactor"}},
	{"generate", []string{"generate"}},
	{"edit", []string{"edit", "fix", "modify"}},
	{"analyze", []string{"analyze", "analyse", "review", "diagnos"}},
	{"test", []string{"test", "pytest"}},
	{"lint", []string{"lint"}},
	{"format", []string{"format"}},
	{"read", []string{"read"}},
}

// inferOperationType inspects the step name, then the actor, for
// operation keywords. The name wins: a "format imports" step run by
// ai_editor is a format operation, not an edit.
func inferOperationType(step *workflow.Step) string {
	for _, haystack := range []string{strings.ToLower(step.Name), strings.ToLower(step.Actor)} {
		if haystack == "" {
			continue
		}
		for _, candidate := range operationKeywords {
			for _, word := range candidate.words {
				if strings.Contains(haystack, word) {
					return candidate.op
				}
			}
		}
	}
	return "general"
}

// operationTypeFactor weighs the inferred operation category.
func operationTypeFactor(op string) float64 {
	switch op {
	case "read", "format":
		return 0.1
	case "lint":
		return 0.15
	case "test":
		return 0.2
	case "edit", "analyze":
		return 0.25
	case "refactor", "generate":
		return maxOperationTypeFactor
	default:
		return 0.2
	}
}

// configurationFactor weighs the size and nesting of `with`.
func configurationFactor(with map[string]interface{}) float64 {
	if len(with) == 0 {
		return 0.05
	}
	nested := false
	for _, v := range with {
		switch v.(type) {
		case map[string]interface{}, []interface{}:
			nested = true
		}
	}
	switch {
	case nested || len(with) > 8:
		return maxConfigurationFactor
	case len(with) > 3:
		return 0.15
	default:
		return 0.1
	}
}

// contextDepsFactor weighs context dependencies: conditions, retry
// configuration, and references to prior step results.
func contextDepsFactor(step *workflow.Step) float64 {
	factor := 0.0
	if step.When != "" {
		factor += 0.1
	}
	if step.Retry != nil {
		factor += 0.05
	}
	for _, v := range step.With {
		if s, ok := v.(string); ok && strings.Contains(s, "steps.") {
			factor += 0.05
			break
		}
	}
	if factor > maxContextDepsFactor {
		factor = maxContextDepsFactor
	}
	return factor
}
