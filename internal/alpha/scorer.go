// Package alpha scores discovery candidates with weighted signals and
// vetoes entries whose factor exposures fall outside configured limits.
package alpha

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"solana-trader/internal/domain"
	"solana-trader/internal/model"
)

// CloseSource supplies recent prices for RSI when a candidate carries none.
type CloseSource interface {
	RecentCloses(ctx context.Context, asset string, n int) ([]float64, error)
}

// factorOrder fixes the order in which limits are checked.
var factorOrder = []string{
	domain.FactorMarketBeta,
	domain.FactorVolatility,
	domain.FactorMomentum,
	domain.FactorLiquidity,
}

// signalOrder fixes the summation order so scores are reproducible.
var signalOrder = []string{
	domain.SignalMomentum,
	domain.SignalMeanReversion,
	domain.SignalVolumeBreakout,
	domain.SignalModelConfidence,
}

// Options for creating a Scorer.
type Options struct {
	Config Config
	Oracle model.Oracle // nil when no model is deployed
	Closes CloseSource  // optional
	Logger logrus.FieldLogger
}

// Scorer computes FactorScores.
type Scorer struct {
	cfg    Config
	oracle model.Oracle
	closes CloseSource
	log    logrus.FieldLogger
}

// New creates a Scorer. cfg is assumed validated.
func New(opts Options) *Scorer {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scorer{
		cfg:    opts.Config,
		oracle: opts.Oracle,
		closes: opts.Closes,
		log:    log.WithField("component", "alpha"),
	}
}

// Score evaluates one candidate. The model oracle is called at most once;
// if it is absent or fails, the remaining weights are renormalized.
func (s *Scorer) Score(ctx context.Context, c domain.Candidate) domain.FactorScore {
	exposures := Exposures(c)
	volatility := exposures[domain.FactorVolatility]

	score := domain.FactorScore{
		Asset:     c.Asset,
		Signals:   make(map[string]float64, len(signalOrder)),
		Weights:   make(map[string]float64, len(signalOrder)),
		Exposures: exposures,
	}

	mom := momentumSignal(c, volatility)
	score.Signals[domain.SignalMomentum] = normalize(mom)
	score.Reasons = append(score.Reasons, reason("momentum %.3f", mom))

	rsi, rsiSource := s.rsi(ctx, c)
	mr := meanReversionSignal(rsi, volatility)
	score.Signals[domain.SignalMeanReversion] = normalize(mr)
	switch {
	case rsi < 30:
		score.Reasons = append(score.Reasons, reason("oversold rsi %.1f (%s)", rsi, rsiSource))
	case rsi > 70:
		score.Reasons = append(score.Reasons, reason("overbought rsi %.1f (%s)", rsi, rsiSource))
	}

	vb, ratio := volumeBreakoutSignal(c)
	score.Signals[domain.SignalVolumeBreakout] = vb
	if vb > 0 {
		score.Reasons = append(score.Reasons, reason("volume breakout %.1fx", ratio))
	}

	if w := s.cfg.Weights[domain.SignalModelConfidence]; w > 0 && s.oracle != nil {
		conf, err := s.confidence(ctx, c)
		if err != nil {
			s.log.WithError(err).WithField("asset", c.Asset).Warn("model confidence unavailable")
			score.Reasons = append(score.Reasons, reason("model unavailable: %v", err))
		} else {
			score.ModelAvailable = true
			score.Signals[domain.SignalModelConfidence] = normalize(conf)
			score.Reasons = append(score.Reasons, reason("model confidence %.3f", conf))
		}
	}

	score.Weights = effectiveWeights(s.cfg.Weights, score.ModelAvailable)
	for _, name := range signalOrder {
		score.Combined += score.Weights[name] * score.Signals[name]
	}

	for _, name := range factorOrder {
		limit, ok := s.cfg.FactorLimits[name]
		if !ok {
			continue
		}
		if v := exposures[name]; !limit.Contains(v) {
			score.Veto = name
			score.Reasons = append(score.Reasons,
				reason("veto: %s exposure %.3f outside [%.2f, %.2f]", name, v, limit.Min, limit.Max))
			break
		}
	}

	score.Recommendation = score.Veto == "" && score.Combined >= s.cfg.EntryThreshold
	return score
}

// confidence calls the oracle once under the configured timeout.
func (s *Scorer) confidence(ctx context.Context, c domain.Candidate) (float64, error) {
	if s.cfg.ModelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ModelTimeout)
		defer cancel()
	}
	conf, err := s.oracle.Confidence(ctx, c)
	if err != nil {
		return 0, &domain.CollaboratorError{Collaborator: "model", Op: "confidence", Asset: c.Asset, Err: err}
	}
	return conf, nil
}

// rsi returns the supplied RSI, or derives one from closes.
func (s *Scorer) rsi(ctx context.Context, c domain.Candidate) (float64, string) {
	if c.RSI != nil {
		return *c.RSI, "feed"
	}
	if len(c.Closes) > s.cfg.RSIPeriod {
		return RSI(c.Closes, s.cfg.RSIPeriod), "closes"
	}
	if s.closes != nil {
		closes, err := s.closes.RecentCloses(ctx, c.Asset, 3*s.cfg.RSIPeriod)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.log.WithError(err).WithField("asset", c.Asset).Debug("recent closes unavailable")
			}
			return neutralRSI, "default"
		}
		if len(closes) > s.cfg.RSIPeriod {
			return RSI(closes, s.cfg.RSIPeriod), "history"
		}
	}
	return neutralRSI, "default"
}

// effectiveWeights drops the model weight when the model did not answer and
// rescales the rest to sum to 1.
func effectiveWeights(configured map[string]float64, modelAvailable bool) map[string]float64 {
	out := make(map[string]float64, len(configured))
	sum := 0.0
	for _, name := range sortedKeys(configured) {
		if name == domain.SignalModelConfidence && !modelAvailable {
			continue
		}
		out[name] = configured[name]
		sum += configured[name]
	}
	if sum <= 0 {
		for name := range out {
			out[name] = 0
		}
		return out
	}
	for name, w := range out {
		out[name] = w / sum
	}
	return out
}
