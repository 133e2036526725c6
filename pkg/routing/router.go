package routing

import (
	"fmt"
	"log/slog"

	"github.com/tombee/dispatch/pkg/adapter"
	"github.com/tombee/dispatch/pkg/scope"
	"github.com/tombee/dispatch/pkg/workflow"
)

// Decision is the outcome of routing one step. Routing never fails;
// unknown actors yield a fallback decision with explicit reasoning.
type Decision struct {
	// AdapterName is the adapter chosen to run the step
	AdapterName string `json:"adapter_name"`

	// AdapterKind is the chosen adapter's kind
	AdapterKind adapter.Kind `json:"adapter_kind"`

	// Reasoning explains the choice for humans and logs
	Reasoning string `json:"reasoning"`

	// EstimatedTokens is the projected token spend (0 for deterministic)
	EstimatedTokens int `json:"estimated_tokens"`

	// ComplexityScore is the analyzed step complexity
	ComplexityScore float64 `json:"complexity_score"`

	// Confidence is the router's confidence in this decision, in [0,1]
	Confidence float64 `json:"confidence"`

	// PerformanceHint carries optional history-derived guidance
	PerformanceHint string `json:"performance_hint,omitempty"`
}

// Alternative mappings between deterministic and AI adapters. The
// table is data, not code: editing it changes routing without touching
// the algorithm.
var (
	// deterministicAlternatives maps an AI adapter to its deterministic
	// downgrade target.
	deterministicAlternatives = map[string]string{
		adapter.KeyAIEditor:  adapter.KeyCodeFixers,
		adapter.KeyAIAnalyst: adapter.KeyVSCodeDiagnostics,
	}

	// aiAlternatives maps a deterministic adapter to its AI upgrade
	// target. pytest_runner upgrades to the editor for complex test
	// generation.
	aiAlternatives = map[string]string{
		adapter.KeyCodeFixers:        adapter.KeyAIEditor,
		adapter.KeyVSCodeDiagnostics: adapter.KeyAIAnalyst,
		adapter.KeyPytestRunner:      adapter.KeyAIEditor,
	}

	// deterministicFallbackChain is tried in order when an unknown or
	// unavailable actor has low complexity.
	deterministicFallbackChain = []string{
		adapter.KeyCodeFixers,
		adapter.KeyVSCodeDiagnostics,
		adapter.KeyPytestRunner,
	}
)

// DefaultAIFallback is the AI adapter used when an unknown actor's
// complexity demands AI-backed handling.
const DefaultAIFallback = adapter.KeyAIEditor

// Router selects adapters for steps. It is deterministic: routing the
// same step and policy against the same registry state yields the same
// decision.
type Router struct {
	registry *adapter.Registry
	analyzer *Analyzer
	scopes   *scope.Manager
	history  *History
	logger   *slog.Logger
}

// NewRouter creates a router over the given registry and analyzer.
func NewRouter(registry *adapter.Registry, analyzer *Analyzer, scopes *scope.Manager) *Router {
	return &Router{
		registry: registry,
		analyzer: analyzer,
		scopes:   scopes,
		history:  NewHistory(nil, nil),
		logger:   slog.Default(),
	}
}

// WithHistory attaches a performance history.
func (r *Router) WithHistory(history *History) *Router {
	if history != nil {
		r.history = history
	}
	return r
}

// WithLogger sets a custom logger.
func (r *Router) WithLogger(logger *slog.Logger) *Router {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// History exposes the router's performance history so the executor can
// record outcomes.
func (r *Router) History() *History {
	return r.history
}

// Registry exposes the underlying adapter registry.
func (r *Router) Registry() *adapter.Registry {
	return r.registry
}

// Route decides which adapter runs the step under the given policy.
func (r *Router) Route(step *workflow.Step, policy *workflow.Policy) *Decision {
	analysis := r.analyzer.Analyze(step)
	threshold := policy.Threshold()

	requested, err := r.registry.Available(step.Actor)
	if err != nil {
		return r.fallback(step, analysis, err)
	}

	// Downgrade an AI step to its deterministic sibling when policy
	// prefers determinism and the analysis supports it.
	if requested.Kind() == adapter.KindAI && policy.DeterministicPreferred() {
		if alt, ok := deterministicAlternatives[step.Actor]; ok &&
			analysis.DeterministicConfidence > 0.6 && analysis.Score <= threshold {
			if _, err := r.registry.Available(alt); err == nil {
				return &Decision{
					AdapterName: alt,
					AdapterKind: adapter.KindDeterministic,
					Reasoning: fmt.Sprintf(
						"Prefer deterministic: %s handles score %.2f with confidence %.2f",
						alt, analysis.Score, analysis.DeterministicConfidence),
					EstimatedTokens: 0,
					ComplexityScore: analysis.Score,
					Confidence:      analysis.DeterministicConfidence,
				}
			}
		}
	}

	// Upgrade a deterministic step to its AI sibling when complexity
	// exceeds the threshold and deterministic confidence is poor.
	if requested.Kind() == adapter.KindDeterministic &&
		analysis.Score > threshold && analysis.DeterministicConfidence < 0.5 {
		if alt, ok := aiAlternatives[step.Actor]; ok {
			if _, err := r.registry.Available(alt); err == nil {
				return &Decision{
					AdapterName: alt,
					AdapterKind: adapter.KindAI,
					Reasoning: fmt.Sprintf(
						"Complexity %.2f exceeds threshold %.2f for %s, upgrading to %s",
						analysis.Score, threshold, step.Actor, alt),
					EstimatedTokens: r.estimateAITokens(alt, analysis),
					ComplexityScore: analysis.Score,
					Confidence:      0.5 + analysis.Score/2,
					PerformanceHint: r.hint(alt),
				}
			}
		}
	}

	// Keep the requested actor.
	decision := &Decision{
		AdapterName:     step.Actor,
		AdapterKind:     requested.Kind(),
		Reasoning:       fmt.Sprintf("Requested actor %s fits (score %.2f)", step.Actor, analysis.Score),
		ComplexityScore: analysis.Score,
		PerformanceHint: r.hint(step.Actor),
	}
	if requested.Kind() == adapter.KindAI {
		decision.EstimatedTokens = r.estimateAITokens(step.Actor, analysis)
		decision.Confidence = r.aiConfidence(step.Actor)
	} else {
		decision.EstimatedTokens = 0
		decision.Confidence = analysis.DeterministicConfidence
	}
	return decision
}

// fallback routes around an unknown or unavailable actor: simple steps
// go to the first available deterministic adapter, complex ones to the
// AI fallback.
func (r *Router) fallback(step *workflow.Step, analysis *Analysis, cause error) *Decision {
	if analysis.Score < 0.4 {
		for _, name := range deterministicFallbackChain {
			if _, err := r.registry.Available(name); err == nil {
				return &Decision{
					AdapterName: name,
					AdapterKind: adapter.KindDeterministic,
					Reasoning: fmt.Sprintf(
						"Actor %s unavailable (%v); low complexity %.2f routed to %s",
						step.Actor, cause, analysis.Score, name),
					EstimatedTokens: 0,
					ComplexityScore: analysis.Score,
					Confidence:      0.6,
				}
			}
		}
	}

	reasoning := fmt.Sprintf(
		"Actor %s unavailable (%v); complexity %.2f routed to AI fallback %s",
		step.Actor, cause, analysis.Score, DefaultAIFallback)
	if _, err := r.registry.Available(DefaultAIFallback); err != nil {
		reasoning += fmt.Sprintf("; fallback also unavailable (%v)", err)
	}
	return &Decision{
		AdapterName:     DefaultAIFallback,
		AdapterKind:     adapter.KindAI,
		Reasoning:       reasoning,
		EstimatedTokens: 500 + int(analysis.Score*1500),
		ComplexityScore: analysis.Score,
		Confidence:      0.7,
	}
}

// estimateAITokens projects token spend from the complexity analysis,
// blended 50/50 with the adapter's rolling historical average when one
// exists.
func (r *Router) estimateAITokens(adapterName string, analysis *Analysis) int {
	estimate := 1000.0 *
		(1 + analysis.Score) *
		(1 + float64(analysis.FileCount)*0.1) *
		(1 + float64(analysis.EstimatedBytes)/(100*1024))

	if stats := r.history.Stats(adapterName); stats != nil && stats.AverageTokens > 0 {
		estimate = estimate*0.5 + stats.AverageTokens*0.5
	}
	return int(estimate)
}

// aiConfidence weights confidence by the adapter's historical success
// rate, defaulting to 0.8 without history.
func (r *Router) aiConfidence(adapterName string) float64 {
	if stats := r.history.Stats(adapterName); stats != nil && stats.TotalExecutions > 0 {
		return 0.5 + 0.5*stats.SuccessRate
	}
	return 0.8
}

// hint summarizes the adapter's history for the decision record.
func (r *Router) hint(adapterName string) string {
	stats := r.history.Stats(adapterName)
	if stats == nil || stats.TotalExecutions == 0 {
		return ""
	}
	return fmt.Sprintf("history: %d runs, %.0f%% success, avg %.0f tokens",
		stats.TotalExecutions, stats.SuccessRate*100, stats.AverageTokens)
}

// EstimateStepCost returns the routed token estimate for a step
// without executing it.
func (r *Router) EstimateStepCost(step *workflow.Step, policy *workflow.Policy) int {
	return r.Route(step, policy).EstimatedTokens
}

// rolePreferences maps a role tag to the adapters tried first during
// budget-aware routing.
func rolePreferences(role string) []string {
	if role == "ipt" {
		return []string{adapter.KeyAIAnalyst, adapter.KeyAIEditor}
	}
	return []string{
		adapter.KeyCodeFixers,
		adapter.KeyVSCodeDiagnostics,
		adapter.KeyPytestRunner,
	}
}

// RouteWithBudget picks the first role-preferred adapter whose cost
// estimate fits the remaining token budget. When none fit it falls
// back to the cheapest available deterministic adapter, and with no
// deterministic adapters at all, to default routing.
func (r *Router) RouteWithBudget(step *workflow.Step, role string, remainingTokens int) *Decision {
	analysis := r.analyzer.Analyze(step)

	for _, name := range rolePreferences(role) {
		a, err := r.registry.Available(name)
		if err != nil {
			continue
		}
		cost := a.EstimateCost(step)
		if cost <= remainingTokens {
			return &Decision{
				AdapterName: name,
				AdapterKind: a.Kind(),
				Reasoning: fmt.Sprintf(
					"Budget-aware: %s estimate %d fits remaining %d (role %q)",
					name, cost, remainingTokens, role),
				EstimatedTokens: cost,
				ComplexityScore: analysis.Score,
				Confidence:      0.7,
			}
		}
	}

	var cheapest adapter.Adapter
	cheapestCost := 0
	for _, d := range r.registry.Descriptors() {
		if d.Kind != adapter.KindDeterministic {
			continue
		}
		a, err := r.registry.Available(d.Name)
		if err != nil {
			continue
		}
		cost := a.EstimateCost(step)
		if cheapest == nil || cost < cheapestCost {
			cheapest = a
			cheapestCost = cost
		}
	}
	if cheapest != nil {
		return &Decision{
			AdapterName: cheapest.Name(),
			AdapterKind: adapter.KindDeterministic,
			Reasoning: fmt.Sprintf(
				"Budget exhausted (remaining %d); cheapest deterministic %s chosen",
				remainingTokens, cheapest.Name()),
			EstimatedTokens: cheapestCost,
			ComplexityScore: analysis.Score,
			Confidence:      0.6,
		}
	}

	return r.Route(step, nil)
}
