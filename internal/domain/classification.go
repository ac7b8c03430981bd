package domain

// WalletType es el badge de patrón de trading de una wallet.
type WalletType string

const (
	WalletClobOnly     WalletType = "CLOB_ONLY"
	WalletMixed        WalletType = "MIXED"
	WalletWhaleComplex WalletType = "WHALE_COMPLEX"
	WalletMaker        WalletType = "MAKER"
	WalletUnknown      WalletType = "UNKNOWN"
)

// ReasonCode es un código de exclusión o rechazo.
type ReasonCode string

// Motivos de exclusión del leaderboard.
const (
	ReasonExtremePositionCount ReasonCode = "EXTREME_POSITION_COUNT"
	ReasonHighPositionCount    ReasonCode = "HIGH_POSITION_COUNT"
	ReasonPnLTooSmall          ReasonCode = "PNL_TOO_SMALL"
	ReasonInsufficientActivity ReasonCode = "INSUFFICIENT_ACTIVITY"
)

// Motivos de rechazo para copy-trading.
const (
	ReasonNotClobOnly       ReasonCode = "NOT_CLOB_ONLY"
	ReasonTooManyPositions  ReasonCode = "TOO_MANY_POSITIONS"
	ReasonLowTradeCount     ReasonCode = "LOW_TRADE_COUNT"
	ReasonSmallPnL          ReasonCode = "SMALL_PNL"
	ReasonNegativeInventory ReasonCode = "NEGATIVE_INVENTORY"
	ReasonProcessingErrors  ReasonCode = "PROCESSING_ERRORS"
)

// LeaderboardEligibility es el resultado del gate estricto del leaderboard.
type LeaderboardEligibility struct {
	Eligible         bool         `json:"eligible"`
	Reasons          []ReasonCode `json:"reasons"`
	WalletType       WalletType   `json:"wallet_type"`
	ExposureEstimate float64      `json:"exposure_estimate"`
}

// CopyTradeChecks son los cuatro checks independientes del gate de copy-trading.
type CopyTradeChecks struct {
	IsClobOnly      bool `json:"is_clob_only"`
	PositionCountOK bool `json:"position_count_ok"`
	ActivityOK      bool `json:"activity_ok"`
	InvariantsPass  bool `json:"invariants_pass"`
}

// CopyTradeEligibility es el resultado del gate de copy-trading.
type CopyTradeEligibility struct {
	Eligible bool            `json:"eligible"`
	Checks   CopyTradeChecks `json:"checks"`
	Reasons  []ReasonCode    `json:"reasons"`
}

// HasReason reporta si code está entre los motivos.
func HasReason(reasons []ReasonCode, code ReasonCode) bool {
	for _, r := range reasons {
		if r == code {
			return true
		}
	}
	return false
}

// Cohort es la cohorte de visualización de una wallet.
type Cohort string

const (
	CohortSafe     Cohort = "SAFE"
	CohortModerate Cohort = "MODERATE"
	CohortRisky    Cohort = "RISKY"
	CohortSuspect  Cohort = "SUSPECT"
)

// Tags son las etiquetas de comportamiento externas que consume el router.
type Tags struct {
	StrictTrader bool `json:"strict_trader"`
	MixedTrader  bool `json:"mixed_trader"`
	MakerHeavy   bool `json:"maker_heavy"`
	DataSuspect  bool `json:"data_suspect"`
}

// CohortDecision es la salida de la tabla de decisión.
type CohortDecision struct {
	Cohort Cohort `json:"cohort"`
	Reason string `json:"reason"`
}

// DisplayPolicy es la fila fija de la tabla cohorte → presentación.
type DisplayPolicy struct {
	Label           string
	ShouldDisplay   bool
	ConfidenceScore float64
}

// Display es lo que finalmente se muestra para una wallet.
type Display struct {
	Wallet        string     `json:"wallet"`
	Cohort        Cohort     `json:"cohort"`
	Reason        string     `json:"reason"`
	DisplayPnL    float64    `json:"display_pnl"`
	DisplayLabel  string     `json:"display_label"`
	Confidence    float64    `json:"confidence"`
	ShouldDisplay bool       `json:"should_display"`
	WalletType    WalletType `json:"wallet_type"`
}
