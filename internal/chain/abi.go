package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Fixed ABI surface of the deployed contracts. The engine never deploys or
// upgrades these; they are an external system.
const (
	factoryABIJSON = `[
		{"type":"function","name":"createVault","stateMutability":"nonpayable",
		 "inputs":[{"name":"priceThreshold1e18","type":"uint256"},{"name":"unlockTime","type":"uint256"}],
		 "outputs":[{"name":"","type":"address"}]},
		{"type":"event","name":"VaultCreated","anonymous":false,
		 "inputs":[{"name":"owner","type":"address","indexed":true},
		           {"name":"vault","type":"address","indexed":false},
		           {"name":"priceThreshold1e18","type":"uint256","indexed":false},
		           {"name":"unlockTime","type":"uint256","indexed":false}]}
	]`

	vaultABIJSON = `[
		{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"type":"function","name":"priceThreshold","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"unlockTime","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"withdrawn","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
		{"type":"function","name":"currentPricePDAIinDAI","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"canWithdraw","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
		{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[],"outputs":[]}
	]`

	pairABIJSON = `[
		{"type":"function","name":"token0","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"type":"function","name":"token1","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"type":"function","name":"getReserves","stateMutability":"view","inputs":[],
		 "outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}]}
	]`

	erc20ABIJSON = `[
		{"type":"function","name":"balanceOf","stateMutability":"view",
		 "inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
	]`
)

const vaultCreatedEvent = "VaultCreated"

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("invalid ABI literal: " + err.Error())
	}
	return parsed
}

var (
	factoryABI = mustParseABI(factoryABIJSON)
	vaultABI   = mustParseABI(vaultABIJSON)
	pairABI    = mustParseABI(pairABIJSON)
	erc20ABI   = mustParseABI(erc20ABIJSON)
)
