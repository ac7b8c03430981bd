package domain

import (
	"sort"
	"time"
)

// WalletReport es la salida por wallet de un batch. Si Error no está vacío,
// Result y las elegibilidades son nil y Display es SUSPECT.
type WalletReport struct {
	Wallet      string                  `json:"wallet"`
	Result      *Result                 `json:"result,omitempty"`
	Leaderboard *LeaderboardEligibility `json:"leaderboard,omitempty"`
	CopyTrade   *CopyTradeEligibility   `json:"copy_trade,omitempty"`
	Display     Display                 `json:"display"`
	Error       string                  `json:"error,omitempty"`
}

// BatchReport agrupa los informes de una ejecución, indexados por wallet en minúsculas.
type BatchReport struct {
	RunID      string                  `json:"run_id"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Wallets    map[string]WalletReport `json:"wallets"`
}

// Failed cuenta las wallets que no se pudieron calcular.
func (b BatchReport) Failed() int {
	n := 0
	for _, w := range b.Wallets {
		if w.Error != "" {
			n++
		}
	}
	return n
}

// Sorted devuelve los informes ordenados por PnL mostrado desc, wallet asc.
func (b BatchReport) Sorted() []WalletReport {
	out := make([]WalletReport, 0, len(b.Wallets))
	for _, w := range b.Wallets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Display.DisplayPnL != out[j].Display.DisplayPnL {
			return out[i].Display.DisplayPnL > out[j].Display.DisplayPnL
		}
		return out[i].Wallet < out[j].Wallet
	})
	return out
}
