// SPDX-License-Identifier: MIT

package rewrite

import (
	"strings"

	"github.com/hlsgate/hlsgate/internal/hls"
	"github.com/hlsgate/hlsgate/internal/metrics"
)

// Rewriter walks a playlist once, line by line. The Nth output line depends
// only on the first N input lines and the client-supplied proxy params;
// output line order and count equal the input.
type Rewriter struct {
	state State
	ctx   *Context
	rules []Rule
}

// New builds a Rewriter with the default rule set.
func New(ctx *Context) *Rewriter {
	return &Rewriter{ctx: ctx, rules: DefaultRules()}
}

// NewWithRules builds a Rewriter with a custom rule set, for tests.
func NewWithRules(ctx *Context, rules []Rule) *Rewriter {
	return &Rewriter{ctx: ctx, rules: rules}
}

// Process transforms an entire playlist body.
func (r *Rewriter) Process(body string) string {
	lines := hls.Lines(body)
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = r.processLine(line)
	}
	return strings.Join(out, "\n")
}

// processLine updates state from an already classified line, applies the
// first matching rule and advances past URIs.
func (r *Rewriter) processLine(line hls.Line) string {
	r.state.observe(line)

	result := line.Raw
	for _, rule := range r.rules {
		if rule.Matches(line, &r.state, r.ctx) {
			result = rule.Transform(line, &r.state, r.ctx)
			if result != line.Raw {
				metrics.RewrittenLines.WithLabelValues(rule.Name()).Inc()
			}
			break
		}
	}

	if line.Kind == hls.LineURI {
		r.state.afterURI()
	}
	return result
}

// State exposes the current walk state for tests.
func (r *Rewriter) State() *State {
	return &r.state
}
