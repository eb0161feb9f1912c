// Package price normalizes the traded pair's reserve slots into a single
// directional pDAI to DAI rate.
//
// Slot ordering is detected once per connection by comparing the pair's
// token0 against the tracked token address. When detection fails the
// slot-0 default applies; a pool deployed with the opposite token order
// would then report an inverted price. The fallback is logged at connect
// time.
package price

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vaultwatch/vaultwatch-backend/internal/model"
)

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Normalizer computes the 1e18 fixed-point DAI-per-pDAI price from raw
// reserves.
type Normalizer struct {
	token0IsPdai bool
}

// NewNormalizer builds a normalizer with the detected slot ordering.
func NewNormalizer(token0IsPdai bool) *Normalizer {
	return &Normalizer{token0IsPdai: token0IsPdai}
}

// DetectOrdering reports whether the pair's slot 0 holds the tracked token.
func DetectOrdering(token0, pdai common.Address) bool {
	return token0 == pdai
}

// Token0IsPdai exposes the ordering used by this normalizer.
func (n *Normalizer) Token0IsPdai() bool {
	return n.token0IsPdai
}

// Normalize turns a reserve pair into a PricePoint. A zero reserve on
// either side yields the no-liquidity sentinel, never a division.
func (n *Normalizer) Normalize(r model.Reserves) model.PricePoint {
	if r.Reserve0 == nil || r.Reserve1 == nil {
		return model.PricePoint{Status: model.PriceNoLiquidity, Token0IsPdai: n.token0IsPdai}
	}

	pdaiReserve, daiReserve := r.Reserve0, r.Reserve1
	if !n.token0IsPdai {
		pdaiReserve, daiReserve = r.Reserve1, r.Reserve0
	}

	point := model.PricePoint{
		PdaiReserve:  pdaiReserve,
		DaiReserve:   daiReserve,
		Token0IsPdai: n.token0IsPdai,
	}
	if pdaiReserve.Sign() == 0 || daiReserve.Sign() == 0 {
		point.Status = model.PriceNoLiquidity
		return point
	}

	price := new(big.Int).Mul(daiReserve, weiPerEther)
	price.Quo(price, pdaiReserve)
	point.Status = model.PriceOK
	point.Price = price
	return point
}
