// Package pricing accumulates per-call token and cost accounting.
// Totals are diagnostic only, never authoritative.
package pricing

import "sync"

// Call carries the token/cost counters reported for one backend call (or a
// merged total over several calls).
type Call struct {
	Provider     string  `json:"provider,omitempty"`
	Model        string  `json:"model,omitempty"`
	Calls        int     `json:"calls,omitempty"`
	InputTokens  int64   `json:"input_tokens,omitempty"`
	OutputTokens int64   `json:"output_tokens,omitempty"`
	TotalCostUSD float64 `json:"total_cost_usd,omitempty"`
}

// Aggregator accumulates calls into one total per request. Record never
// fails; nil or partial call data counts as zero cost.
type Aggregator struct {
	mu    sync.Mutex
	total Call
	seen  bool
}

// Record adds one call to the running total. Provider and model stick from
// the first recorded call.
func (a *Aggregator) Record(call *Call) {
	if call == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.seen {
		a.total.Provider = call.Provider
		a.total.Model = call.Model
		a.seen = true
	}
	n := call.Calls
	if n == 0 {
		n = 1
	}
	a.total.Calls += n
	a.total.InputTokens += call.InputTokens
	a.total.OutputTokens += call.OutputTokens
	a.total.TotalCostUSD += call.TotalCostUSD
}

// Total returns the aggregated call, or nil when nothing was recorded.
func (a *Aggregator) Total() *Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.seen {
		return nil
	}
	out := a.total
	return &out
}

// Merge aggregates a slice of calls; nil entries are skipped.
func Merge(calls []*Call) *Call {
	var agg Aggregator
	for _, c := range calls {
		agg.Record(c)
	}
	return agg.Total()
}
