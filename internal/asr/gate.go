package asr

import (
	"log/slog"
	"sync"
	"time"

	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/metrics"
)

// Forced-finalization triggers.
const (
	ForceReasonSilence      = "end_of_utterance"
	ForceReasonStall        = "stall"
	ForceReasonTurnComplete = "turn_complete"
)

// GateParams tunes the stability gate.
type GateParams struct {
	// Delta is the maximum allowed instability (1 - stability score)
	// for two consecutive hypotheses to count as agreeing.
	Delta float64
	// StabilityK is the number of consecutive agreements required to
	// finalize.
	StabilityK int
	// StallTimeout forces finalization when no new hypothesis arrives
	// while a partial is pending.
	StallTimeout time.Duration
}

// Result is the outcome of one gate observation.
type Result struct {
	Text      string
	Stability float64
	Final     bool
	Forced    bool
	Reason    string
}

// Gate finalizes a stream of partial hypotheses once they stop churning.
// One gate serves one session; a finalized transcript is latched until
// TakeFinal consumes it, then the gate resets for the next utterance.
type Gate struct {
	params  GateParams
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu           sync.Mutex
	prevTokens   []string
	current      string
	agreeCount   int
	final        string
	hasFinal     bool
	utteranceAt  time.Time // first hypothesis of the current utterance
	lastObserved time.Time

	nowFunc func() time.Time
}

// NewGate creates a stability gate.
func NewGate(params GateParams, logger *slog.Logger, m *metrics.Metrics) *Gate {
	return &Gate{
		params:  params,
		logger:  logger,
		metrics: m,
		nowFunc: time.Now,
	}
}

// Observe feeds one partial hypothesis. The hypothesis finalizes when
// StabilityK consecutive observations each stay within Delta of their
// predecessor. Observations after a latched final start a new utterance.
func (g *Gate) Observe(hypothesis string) Result {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.nowFunc()
	if g.utteranceAt.IsZero() {
		g.utteranceAt = now
	}
	g.lastObserved = now

	tokens := tokenize(hypothesis)
	score := stabilityScore(g.prevTokens, tokens)

	if g.prevTokens != nil && (1-score) <= g.params.Delta {
		g.agreeCount++
	} else {
		g.agreeCount = 0
	}
	g.prevTokens = tokens
	g.current = hypothesis
	g.metrics.RecordGatePartial(score)

	if g.agreeCount >= g.params.StabilityK {
		g.latchLocked(hypothesis, false, "")
		return Result{Text: hypothesis, Stability: score, Final: true}
	}

	return Result{Text: hypothesis, Stability: score}
}

// ForceFinal finalizes the pending partial regardless of stability.
// Reports false when there is nothing pending and nothing latched.
// Never an error surface: forced finalization is an expected degraded
// path and only shows up in logs and metrics.
func (g *Gate) ForceFinal(reason string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current == "" {
		return g.hasFinal
	}
	g.latchLocked(g.current, true, reason)
	return true
}

// CheckStall force-finalizes when the pending partial has gone quiet
// for longer than StallTimeout. Called periodically by the session pump.
func (g *Gate) CheckStall() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current == "" {
		return false
	}
	if g.nowFunc().Sub(g.lastObserved) < g.params.StallTimeout {
		return false
	}
	g.latchLocked(g.current, true, ForceReasonStall)
	return true
}

// TakeFinal consumes the latched final transcript. Reports false when
// no final is latched. Consuming does not disturb a partial utterance
// that started after the latch.
func (g *Gate) TakeFinal() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.hasFinal {
		return "", false
	}
	text := g.final
	g.final = ""
	g.hasFinal = false
	return text, true
}

// Pending returns the current unfinalized partial, if any.
func (g *Gate) Pending() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == "" {
		return "", false
	}
	return g.current, true
}

// Reset discards all gate state, pending and latched.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.resetPendingLocked()
	g.final = ""
	g.hasFinal = false
	g.mu.Unlock()
}

// latchLocked stores a final transcript and clears the pending
// utterance so the next hypothesis starts fresh. An unconsumed earlier
// final is overwritten; the newest utterance wins.
func (g *Gate) latchLocked(text string, forced bool, reason string) {
	latency := g.nowFunc().Sub(g.utteranceAt).Seconds()
	tokens := len(g.prevTokens)

	g.final = text
	g.hasFinal = true
	g.resetPendingLocked()

	if forced {
		g.metrics.RecordGateForcedFinal(reason, latency)
		g.logger.Info("transcript force-finalized",
			slog.String("reason", reason),
			slog.Float64("latency_seconds", latency),
			slog.Int("tokens", tokens))
	} else {
		g.metrics.RecordGateFinal(latency)
		g.logger.Debug("transcript finalized",
			slog.Float64("latency_seconds", latency),
			slog.Int("tokens", tokens))
	}
}

func (g *Gate) resetPendingLocked() {
	g.prevTokens = nil
	g.current = ""
	g.agreeCount = 0
	g.utteranceAt = time.Time{}
}
