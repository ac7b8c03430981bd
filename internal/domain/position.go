package domain

import "time"

// DustThreshold absorbe el drift de punto flotante: cantidades y costes por
// debajo de este valor se tratan como cero.
const DustThreshold = 1e-6

// Resolution es el precio de resolución de un outcome. Known=false significa
// "sin resolver", distinto de "resuelto a 0".
type Resolution struct {
	Price float64
	Known bool
}

// OutcomeHolding es el estado por outcome dentro de una condición.
// El coste por outcome es solo diagnóstico: el COGS usa el coste agrupado.
type OutcomeHolding struct {
	Quantity     float64
	CostBasis    float64
	AcquiredQty  float64 // acumulado histórico de tokens recibidos
	AcquiredCost float64 // acumulado histórico de USDC pagado por esos tokens
	Resolution   Resolution
}

// AvgAcquisitionCost devuelve el coste medio histórico de adquisición del outcome.
func (o OutcomeHolding) AvgAcquisitionCost() float64 {
	if o.AcquiredQty <= DustThreshold {
		return 0
	}
	return o.AcquiredCost / o.AcquiredQty
}

// KindCounts cuenta eventos aplicados por tipo.
type KindCounts struct {
	Trades      int
	Splits      int
	Merges      int
	Redemptions int
}

// Total devuelve la suma de todos los contadores.
func (k KindCounts) Total() int {
	return k.Trades + k.Splits + k.Merges + k.Redemptions
}

// Inc incrementa el contador del tipo dado.
func (k *KindCounts) Inc(kind SourceKind) {
	switch kind {
	case SourceTrade:
		k.Trades++
	case SourceSplit:
		k.Splits++
	case SourceMerge:
		k.Merges++
	case SourceRedemption:
		k.Redemptions++
	}
}

// ConditionPosition es la posición de una wallet en una condición.
//
// TotalQuantity y TotalCostBasis están agrupados entre todos los outcomes:
// un split entrega tokens en un outcome y un merge puede consumirlos en otro,
// así que el coste se lleva una vez por condición.
type ConditionPosition struct {
	ConditionID    string
	TotalQuantity  float64
	TotalCostBasis float64
	RealizedPnL    float64
	Outcomes       map[int]*OutcomeHolding
	IsResolved     bool
	ResolvedAt     time.Time
	Counts         KindCounts
}

// NewConditionPosition crea una posición vacía.
func NewConditionPosition(conditionID string) *ConditionPosition {
	return &ConditionPosition{
		ConditionID: conditionID,
		Outcomes:    make(map[int]*OutcomeHolding),
	}
}

// Outcome devuelve el holding del outcome, creándolo si no existe.
func (p *ConditionPosition) Outcome(idx int) *OutcomeHolding {
	o, ok := p.Outcomes[idx]
	if !ok {
		o = &OutcomeHolding{}
		p.Outcomes[idx] = o
	}
	return o
}

// AvgCost devuelve el coste medio agrupado por token (0 sin inventario).
func (p *ConditionPosition) AvgCost() float64 {
	if p.TotalQuantity <= DustThreshold {
		return 0
	}
	return p.TotalCostBasis / p.TotalQuantity
}

// IsOpen reporta si algún outcome conserva tokens.
func (p *ConditionPosition) IsOpen() bool {
	for _, o := range p.Outcomes {
		if o.Quantity > DustThreshold {
			return true
		}
	}
	return false
}
