package engine

import (
	"fmt"
	"time"

	"github.com/vaultwatch/vaultwatch-backend/internal/model"
	"github.com/vaultwatch/vaultwatch-backend/internal/status"
	"github.com/vaultwatch/vaultwatch-backend/pkg/fixedpoint"
)

// PriceView is the render-ready global price.
type PriceView struct {
	Status       model.PriceStatus `json:"status"`
	Display      string            `json:"display,omitempty"`
	Raw          string            `json:"raw,omitempty"`
	Token0IsPdai bool              `json:"token0IsPdai"`
}

// LockView is one lock with its derived status and countdown.
type LockView struct {
	Address      string        `json:"address"`
	Status       status.Status `json:"status"`
	Countdown    string        `json:"countdown"`
	Threshold    string        `json:"threshold"`
	ThresholdRaw string        `json:"thresholdRaw"`
	Balance      string        `json:"balance"`
	CurrentPrice string        `json:"currentPrice"`
	UnlockTime   int64         `json:"unlockTime"`
	CanWithdraw  bool          `json:"canWithdraw"`
	Withdrawn    bool          `json:"withdrawn"`
	Stale        bool          `json:"stale"`
}

// Snapshot is the full render payload emitted after every refresh and on
// every render tick.
type Snapshot struct {
	Owner       string     `json:"owner"`
	ChainID     string     `json:"chainId"`
	Price       PriceView  `json:"price"`
	Locks       []LockView `json:"locks"`
	GeneratedAt int64      `json:"generatedAt"`
}

func buildPriceView(point model.PricePoint) PriceView {
	view := PriceView{Status: point.Status, Token0IsPdai: point.Token0IsPdai}
	if point.Status == model.PriceOK && point.Price != nil {
		view.Display = fmt.Sprintf("1 pDAI = %s DAI", fixedpoint.Format(point.Price, 6))
		view.Raw = fixedpoint.Raw(point.Price)
	}
	return view
}

func buildLockView(lock model.Lock, now time.Time) LockView {
	return LockView{
		Address:      lock.Address,
		Status:       status.Classify(lock),
		Countdown:    status.Countdown(now, lock.UnlockTime),
		Threshold:    fixedpoint.Format(lock.Threshold, 6),
		ThresholdRaw: fixedpoint.Raw(lock.Threshold),
		Balance:      fixedpoint.Format(lock.Balance, 6),
		CurrentPrice: fixedpoint.Format(lock.CurrentPrice, 6),
		UnlockTime:   lock.UnlockTime,
		CanWithdraw:  lock.CanWithdraw,
		Withdrawn:    lock.Withdrawn,
		Stale:        lock.Stale,
	}
}
