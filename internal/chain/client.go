// Package chain reads and writes the vault contract surface through a
// rate-limited, metrics-observed ethclient.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"github.com/vaultwatch/vaultwatch-backend/internal/model"
)

type (
	// Metrics records per-operation call outcomes.
	Metrics interface {
		Observe(operation string, err error, started time.Time)
	}
)

// Addresses holds the deployed contract addresses.
type Addresses struct {
	Factory common.Address
	Token   common.Address
	Pair    common.Address
}

// Client is the observed contract client.
type Client struct {
	eth     *ethclient.Client
	wallet  Wallet
	addrs   Addresses
	factory *bind.BoundContract
	pair    *bind.BoundContract
	token   *bind.BoundContract
	rl      ratelimit.Limiter
	metrics Metrics
	logger  *zap.Logger
}

// NewClient wires the bound contracts over an established ethclient
// connection. rps caps the read rate against the RPC endpoint.
func NewClient(eth *ethclient.Client, wallet Wallet, addrs Addresses, metrics Metrics, rps int, logger *zap.Logger) (*Client, error) {
	if eth == nil {
		return nil, errors.New("ethclient is required")
	}
	if metrics == nil {
		return nil, errors.New("chain metrics is required")
	}
	if rps < 1 {
		rps = 10
	}

	return &Client{
		eth:     eth,
		wallet:  wallet,
		addrs:   addrs,
		factory: bind.NewBoundContract(addrs.Factory, factoryABI, eth, eth, eth),
		pair:    bind.NewBoundContract(addrs.Pair, pairABI, eth, eth, eth),
		token:   bind.NewBoundContract(addrs.Token, erc20ABI, eth, eth, eth),
		rl:      ratelimit.New(rps),
		metrics: metrics,
		logger:  logger.Named("chain"),
	}, nil
}

// ChainID returns the connected network's chain id.
func (c *Client) ChainID(ctx context.Context) (id *big.Int, err error) {
	started := time.Now()
	defer func() {
		c.metrics.Observe("chain_id", err, started)
	}()
	c.rl.Take()
	return c.eth.ChainID(ctx)
}

// PairToken0 reads the pair's slot-0 token address, used once per connect
// to detect reserve ordering.
func (c *Client) PairToken0(ctx context.Context) (token0 common.Address, err error) {
	started := time.Now()
	defer func() {
		c.metrics.Observe("pair_token0", err, started)
	}()

	var out []interface{}
	c.rl.Take()
	if err = c.pair.Call(&bind.CallOpts{Context: ctx}, &out, "token0"); err != nil {
		return common.Address{}, fmt.Errorf("call token0: %w", err)
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected token0 result %T", out[0])
	}
	return addr, nil
}

// TokenOrdering reports whether the pair's slot 0 holds the tracked token.
// Callers decide what to do when the detection call itself fails.
func (c *Client) TokenOrdering(ctx context.Context) (bool, error) {
	token0, err := c.PairToken0(ctx)
	if err != nil {
		return false, err
	}
	return token0 == c.addrs.Token, nil
}

// Reserves reads the pair's raw reserve slots.
func (c *Client) Reserves(ctx context.Context) (reserves model.Reserves, err error) {
	started := time.Now()
	defer func() {
		c.metrics.Observe("get_reserves", err, started)
	}()

	var out []interface{}
	c.rl.Take()
	if err = c.pair.Call(&bind.CallOpts{Context: ctx}, &out, "getReserves"); err != nil {
		return model.Reserves{}, fmt.Errorf("call getReserves: %w", err)
	}
	if len(out) < 2 {
		return model.Reserves{}, fmt.Errorf("unexpected getReserves result arity %d", len(out))
	}
	r0, ok0 := out[0].(*big.Int)
	r1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return model.Reserves{}, fmt.Errorf("unexpected getReserves result types %T, %T", out[0], out[1])
	}
	return model.Reserves{Reserve0: r0, Reserve1: r1}, nil
}

// VaultState reads one vault's unlock-relevant fields and the vault's token
// balance as a single logical batch; the individual calls run concurrently.
func (c *Client) VaultState(ctx context.Context, vault common.Address) (state model.VaultState, err error) {
	started := time.Now()
	defer func() {
		c.metrics.Observe("vault_state", err, started)
	}()

	contract := bind.NewBoundContract(vault, vaultABI, c.eth, c.eth, c.eth)

	var (
		threshold, unlockTime, currentPrice, balance *big.Int
		withdrawn, canWithdraw                       bool
	)

	reads := []func() error{
		func() error { return c.callBigInt(ctx, contract, "priceThreshold", &threshold) },
		func() error { return c.callBigInt(ctx, contract, "unlockTime", &unlockTime) },
		func() error { return c.callBool(ctx, contract, "withdrawn", &withdrawn) },
		func() error { return c.callBool(ctx, contract, "canWithdraw", &canWithdraw) },
		func() error { return c.callBigInt(ctx, contract, "currentPricePDAIinDAI", &currentPrice) },
		func() error { return c.balanceOf(ctx, vault, &balance) },
	}

	errs := make([]error, len(reads))
	wg := sync.WaitGroup{}
	for i, read := range reads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = read()
		}()
	}
	wg.Wait()

	for _, readErr := range errs {
		if readErr != nil {
			err = fmt.Errorf("vault %s: %w", vault.Hex(), readErr)
			return model.VaultState{}, err
		}
	}

	return model.VaultState{
		Threshold:    threshold,
		UnlockTime:   unlockTime.Int64(),
		Withdrawn:    withdrawn,
		CanWithdraw:  canWithdraw,
		CurrentPrice: currentPrice,
		Balance:      balance,
	}, nil
}

// OwnerVaults scans past creation events for vaults owned by owner.
func (c *Client) OwnerVaults(ctx context.Context, owner common.Address) (refs []model.VaultRef, err error) {
	started := time.Now()
	defer func() {
		c.metrics.Observe("owner_vaults", err, started)
	}()

	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.addrs.Factory},
		Topics: [][]common.Hash{
			{factoryABI.Events[vaultCreatedEvent].ID},
			{common.BytesToHash(common.LeftPadBytes(owner.Bytes(), 32))},
		},
	}
	c.rl.Take()
	logs, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("filter creation events: %w", err)
	}

	refs = make([]model.VaultRef, 0, len(logs))
	for i := range logs {
		ev, unpackErr := c.unpackCreated(logs[i])
		if unpackErr != nil {
			c.logger.Warn("skipping undecodable creation event",
				zap.String("tx", logs[i].TxHash.Hex()), zap.Error(unpackErr))
			continue
		}
		refs = append(refs, model.VaultRef{
			Address:    model.NormalizeAddress(ev.Vault.Hex()),
			Threshold:  ev.Threshold,
			UnlockTime: ev.UnlockTime,
			Source:     model.RefSourceDiscovered,
		})
	}
	return refs, nil
}

// CreateVault submits the creation transaction, waits for it to be mined,
// and recovers the new vault's address from the emitted event. A mined
// receipt without a decodable event yields ErrAddressUnresolved: the vault
// exists on chain but its address is unknown to us.
func (c *Client) CreateVault(ctx context.Context, threshold *big.Int, unlockTime int64) (created model.CreatedVault, err error) {
	started := time.Now()
	defer func() {
		c.metrics.Observe("create_vault", err, started)
	}()

	opts, err := c.wallet.TransactOpts(ctx)
	if err != nil {
		return model.CreatedVault{}, fmt.Errorf("%w: %s", model.ErrTransactionFailed, err)
	}

	c.rl.Take()
	tx, err := c.factory.Transact(opts, "createVault", threshold, big.NewInt(unlockTime))
	if err != nil {
		return model.CreatedVault{}, fmt.Errorf("%w: submit createVault: %s", model.ErrTransactionFailed, err)
	}

	receipt, err := c.waitMined(ctx, tx)
	if err != nil {
		return model.CreatedVault{}, err
	}

	for _, lg := range receipt.Logs {
		if lg.Address != c.addrs.Factory {
			continue
		}
		ev, unpackErr := c.unpackCreated(*lg)
		if unpackErr != nil {
			continue
		}
		if ev.Owner != c.wallet.Address() {
			continue
		}
		return model.CreatedVault{
			Owner:      ev.Owner,
			Vault:      ev.Vault,
			Threshold:  ev.Threshold,
			UnlockTime: ev.UnlockTime,
		}, nil
	}

	err = fmt.Errorf("%w: tx %s mined without a creation event", model.ErrAddressUnresolved, tx.Hash().Hex())
	return model.CreatedVault{}, err
}

// Withdraw submits the withdrawal transaction for vault and waits for it
// to be mined.
func (c *Client) Withdraw(ctx context.Context, vault common.Address) (err error) {
	started := time.Now()
	defer func() {
		c.metrics.Observe("withdraw", err, started)
	}()

	opts, err := c.wallet.TransactOpts(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s", model.ErrTransactionFailed, err)
	}

	contract := bind.NewBoundContract(vault, vaultABI, c.eth, c.eth, c.eth)
	c.rl.Take()
	tx, err := contract.Transact(opts, "withdraw")
	if err != nil {
		return fmt.Errorf("%w: submit withdraw: %s", model.ErrTransactionFailed, err)
	}

	_, err = c.waitMined(ctx, tx)
	return err
}

func (c *Client) waitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: await confirmation of %s: %s", model.ErrTransactionFailed, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: tx %s reverted", model.ErrTransactionFailed, tx.Hash().Hex())
	}
	return receipt, nil
}

type createdEvent struct {
	Owner              common.Address
	Vault              common.Address
	PriceThreshold1e18 *big.Int
	UnlockTime         *big.Int
}

type createdFields struct {
	Owner      common.Address
	Vault      common.Address
	Threshold  *big.Int
	UnlockTime int64
}

func (c *Client) unpackCreated(lg types.Log) (createdFields, error) {
	var ev createdEvent
	if err := c.factory.UnpackLog(&ev, vaultCreatedEvent, lg); err != nil {
		return createdFields{}, fmt.Errorf("unpack %s: %w", vaultCreatedEvent, err)
	}
	return createdFields{
		Owner:      ev.Owner,
		Vault:      ev.Vault,
		Threshold:  ev.PriceThreshold1e18,
		UnlockTime: ev.UnlockTime.Int64(),
	}, nil
}

func (c *Client) callBigInt(ctx context.Context, contract *bind.BoundContract, method string, dst **big.Int) error {
	var out []interface{}
	c.rl.Take()
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method); err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return fmt.Errorf("unexpected %s result %T", method, out[0])
	}
	*dst = v
	return nil
}

func (c *Client) callBool(ctx context.Context, contract *bind.BoundContract, method string, dst *bool) error {
	var out []interface{}
	c.rl.Take()
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method); err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	v, ok := out[0].(bool)
	if !ok {
		return fmt.Errorf("unexpected %s result %T", method, out[0])
	}
	*dst = v
	return nil
}

func (c *Client) balanceOf(ctx context.Context, holder common.Address, dst **big.Int) error {
	var out []interface{}
	c.rl.Take()
	if err := c.token.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", holder); err != nil {
		return fmt.Errorf("call balanceOf: %w", err)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return fmt.Errorf("unexpected balanceOf result %T", out[0])
	}
	*dst = v
	return nil
}
