// Package model holds the domain types shared across the engine.
package model

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// RefSource records how a vault reference entered the registry.
type RefSource string

const (
	RefSourceManual     RefSource = "manual"
	RefSourceCreated    RefSource = "created"
	RefSourceDiscovered RefSource = "discovered"
)

// VaultRef is a persisted provenance record for a tracked vault.
// Threshold and UnlockTime are optional: manual entries carry neither,
// created and discovered entries carry both.
type VaultRef struct {
	Address    string    `json:"address"`
	Threshold  *big.Int  `json:"threshold,omitempty"`
	UnlockTime int64     `json:"unlockTime,omitempty"`
	Source     RefSource `json:"source"`
}

// VaultState is one vault's remotely read field set.
type VaultState struct {
	Threshold    *big.Int
	UnlockTime   int64
	Withdrawn    bool
	CanWithdraw  bool
	CurrentPrice *big.Int
	Balance      *big.Int
}

// Lock is the full working record rebuilt every refresh cycle. Threshold
// and UnlockTime hold the last known value, remote winning over the
// registry copy whenever the remote read succeeded.
type Lock struct {
	Address      string   `json:"address"`
	Threshold    *big.Int `json:"threshold"`
	UnlockTime   int64    `json:"unlockTime"`
	Balance      *big.Int `json:"balance"`
	CurrentPrice *big.Int `json:"currentPrice"`
	CanWithdraw  bool     `json:"canWithdraw"`
	Withdrawn    bool     `json:"withdrawn"`
	Stale        bool     `json:"stale"`
}

// Reserves is the raw pair reading, slot order as reported on chain.
type Reserves struct {
	Reserve0 *big.Int
	Reserve1 *big.Int
}

// PriceStatus describes the liveness of the global price.
type PriceStatus string

const (
	PriceOK          PriceStatus = "ok"
	PriceNoLiquidity PriceStatus = "no-liquidity"
	PriceError       PriceStatus = "error"
)

// PricePoint is the normalized directional price. Price is scaled 1e18
// (DAI per pDAI) and is nil unless Status is PriceOK.
type PricePoint struct {
	Status       PriceStatus `json:"status"`
	PdaiReserve  *big.Int    `json:"pdaiReserve,omitempty"`
	DaiReserve   *big.Int    `json:"daiReserve,omitempty"`
	Token0IsPdai bool        `json:"token0IsPdai"`
	Price        *big.Int    `json:"price,omitempty"`
}

// CreatedVault is the typed result of recovering a new vault address from
// a creation receipt.
type CreatedVault struct {
	Owner      common.Address
	Vault      common.Address
	Threshold  *big.Int
	UnlockTime int64
}

// NormalizeAddress canonicalizes a hex address to lowercase so registry
// equality never needs case folding downstream.
func NormalizeAddress(addr string) string {
	return strings.ToLower(common.HexToAddress(addr).Hex())
}
