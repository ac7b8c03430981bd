package classifier

import "github.com/alejandrodnm/polypnl/internal/domain"

// TaggerConfig sets when split/merge activity counts as maker-heavy.
type TaggerConfig struct {
	// MakerHeavyMinRatio is the minimum (splits+merges)/events share.
	MakerHeavyMinRatio float64
	// MakerHeavyMinEvents is the minimum absolute splits+merges.
	MakerHeavyMinEvents int
}

// DefaultTaggerConfig returns the production thresholds.
func DefaultTaggerConfig() TaggerConfig {
	return TaggerConfig{
		MakerHeavyMinRatio:  0.25,
		MakerHeavyMinEvents: 10,
	}
}

// Tagger derives behavioral tags from the event counters when no external
// tag source is available.
type Tagger struct {
	cfg TaggerConfig
}

// NewTagger creates a Tagger; zero fields fall back to the defaults.
func NewTagger(cfg TaggerConfig) *Tagger {
	def := DefaultTaggerConfig()
	if cfg.MakerHeavyMinRatio <= 0 {
		cfg.MakerHeavyMinRatio = def.MakerHeavyMinRatio
	}
	if cfg.MakerHeavyMinEvents <= 0 {
		cfg.MakerHeavyMinEvents = def.MakerHeavyMinEvents
	}
	return &Tagger{cfg: cfg}
}

// Tags returns the derived tags for a result.
func (t *Tagger) Tags(r domain.Result) domain.Tags {
	c := r.Counts
	inventoryOps := c.Splits + c.Merges

	makerHeavy := false
	if total := c.Total(); total > 0 && inventoryOps >= t.cfg.MakerHeavyMinEvents {
		makerHeavy = float64(inventoryOps)/float64(total) >= t.cfg.MakerHeavyMinRatio
	}

	return domain.Tags{
		StrictTrader: isClobOnly(c),
		MixedTrader:  c.Trades > 0 && inventoryOps > 0 && !makerHeavy,
		MakerHeavy:   makerHeavy,
	}
}

// Badge returns the badge to display: MAKER for maker-heavy wallets,
// UNKNOWN when nothing was computed, else the counter-based type.
func Badge(r *domain.Result, tags domain.Tags) domain.WalletType {
	if r == nil {
		return domain.WalletUnknown
	}
	if tags.MakerHeavy && r.OpenPositions <= whaleOpenPositions {
		return domain.WalletMaker
	}
	return ClassifyWalletType(r.OpenPositions, r.Counts)
}
