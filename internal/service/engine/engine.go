// Package engine implements the vault state reconciliation engine: it
// merges the durable registry with remote contract state into Lock records,
// classifies them, and drives the periodic refresh schedule.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/vaultwatch/vaultwatch-backend/internal/clock"
	"github.com/vaultwatch/vaultwatch-backend/internal/model"
	"github.com/vaultwatch/vaultwatch-backend/internal/price"
	"github.com/vaultwatch/vaultwatch-backend/pkg/fanout"
)

// Engine owns one wallet session's reconciliation state. Locks are a
// transient scratch space rebuilt wholesale every cycle; the registry is
// the only durable store.
type Engine struct {
	logger   *zap.Logger
	registry Registry
	reader   ChainReader
	sender   TxSender
	wallet   Wallet
	notifier Notifier
	metrics  Metrics

	now            func() time.Time
	priceInterval  time.Duration
	renderInterval time.Duration
	workerCount    int

	mu         sync.RWMutex
	connected  bool
	owner      common.Address
	chainID    *big.Int
	normalizer *price.Normalizer
	locks      []model.Lock
	prev       map[string]model.Lock
	pricePoint model.PricePoint

	tickerMu     sync.Mutex
	tickerCancel context.CancelFunc
	tickerWG     sync.WaitGroup

	// refreshMu serializes full refresh cycles so a new cycle never starts
	// while a previous one for the same trigger path is outstanding.
	refreshMu sync.Mutex

	// txMu serializes user-initiated create/withdraw flows; a second
	// overlapping transaction is rejected with ErrBusy instead of queued.
	txMu chan struct{}
}

// New builds an engine. Call Connect to establish a session before using
// the read or action surface.
func New(
	registry Registry,
	reader ChainReader,
	sender TxSender,
	wallet Wallet,
	notifier Notifier,
	metrics Metrics,
	logger *zap.Logger,
) (*Engine, error) {
	if metrics == nil {
		return nil, errors.New("engine metrics is required")
	}
	if notifier == nil {
		return nil, errors.New("engine notifier is required")
	}

	return &Engine{
		logger:         logger.Named("engine"),
		registry:       registry,
		reader:         reader,
		sender:         sender,
		wallet:         wallet,
		notifier:       notifier,
		metrics:        metrics,
		now:            time.Now,
		priceInterval:  priceRefreshInterval,
		renderInterval: renderTickInterval,
		workerCount:    defaultWorkerCount,
		prev:           make(map[string]model.Lock),
		pricePoint:     model.PricePoint{Status: model.PriceError},
		txMu:           make(chan struct{}, 1),
	}, nil
}

// Connect establishes the session: verifies the network, detects the
// pair's token ordering, merges discovered vaults into the registry, runs
// the first full refresh, and (re)starts the periodic tasks. Reconnecting
// tears down the previous session's timers first so they never accumulate.
func (e *Engine) Connect(ctx context.Context) error {
	chainID, err := e.reader.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s", model.ErrConnectionFailed, err)
	}
	owner := e.wallet.Address()

	token0IsPdai, err := e.reader.TokenOrdering(ctx)
	if err != nil {
		// Assume slot 0 holds the tracked token rather than blocking
		// the session.
		e.logger.Warn("token ordering detection failed, assuming slot 0 is pDAI", zap.Error(err))
		token0IsPdai = true
	}

	e.stopTickers()

	e.mu.Lock()
	e.connected = true
	e.owner = owner
	e.chainID = chainID
	e.normalizer = price.NewNormalizer(token0IsPdai)
	e.locks = nil
	e.prev = make(map[string]model.Lock)
	e.pricePoint = model.PricePoint{Status: model.PriceError, Token0IsPdai: token0IsPdai}
	e.mu.Unlock()

	e.logger.Info("session connected",
		zap.String("owner", owner.Hex()),
		zap.String("chain_id", chainID.String()),
		zap.Bool("token0_is_pdai", token0IsPdai),
	)

	e.discoverVaults(ctx, owner)
	e.RefreshPrice(ctx)
	if err := e.RefreshAll(ctx); err != nil {
		return err
	}

	e.startTickers(ctx)
	return nil
}

// Close stops the periodic tasks.
func (e *Engine) Close() {
	e.stopTickers()
}

// discoverVaults merges past creation events into the registry. Discovery
// failures never block the connect sequence.
func (e *Engine) discoverVaults(ctx context.Context, owner common.Address) {
	refs, err := e.reader.OwnerVaults(ctx, owner)
	if err != nil {
		e.logger.Warn("vault discovery failed, continuing with registry only", zap.Error(err))
		return
	}
	for _, ref := range refs {
		added, err := e.registry.Add(ctx, owner.Hex(), ref)
		if err != nil {
			e.logger.Warn("persist discovered vault failed", zap.String("vault", ref.Address), zap.Error(err))
			continue
		}
		if added {
			e.logger.Info("discovered vault", zap.String("vault", ref.Address))
		}
	}
}

// RefreshAll rebuilds the Lock list from the registry and a concurrent
// fan-out of remote reads. A vault whose reads fail keeps its previous (or
// registry-derived) values; the cycle itself always completes.
func (e *Engine) RefreshAll(ctx context.Context) error {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	started := time.Now()

	e.mu.RLock()
	connected := e.connected
	owner := e.owner
	e.mu.RUnlock()
	if !connected {
		return model.ErrNotConnected
	}

	refs, err := e.registry.List(ctx, owner.Hex())
	if err != nil {
		err = fmt.Errorf("list registry: %w", err)
		e.metrics.ObserveRefresh(err, 0, started)
		return err
	}

	states := make([]model.VaultState, len(refs))
	indices := make([]int, len(refs))
	for i := range refs {
		indices[i] = i
	}

	results := fanout.Process(ctx, e.workerCount, indices, func(ctx context.Context, i int) error {
		state, readErr := e.reader.VaultState(ctx, common.HexToAddress(refs[i].Address))
		if readErr != nil {
			return readErr
		}
		states[i] = state
		return nil
	})

	e.mu.Lock()
	failed := 0
	locks := make([]model.Lock, 0, len(refs))
	for i, ref := range refs {
		if results[i].Err != nil {
			failed++
			e.logger.Warn("vault read failed, keeping last known values",
				zap.String("vault", ref.Address),
				zap.Error(fmt.Errorf("%w: %s", model.ErrRemoteReadFailed, results[i].Err)),
			)
			locks = append(locks, e.fallbackLockLocked(ref))
			continue
		}
		locks = append(locks, mergeLock(ref, states[i]))
	}
	e.locks = locks
	e.prev = make(map[string]model.Lock, len(locks))
	for _, lock := range locks {
		e.prev[lock.Address] = lock
	}
	e.mu.Unlock()

	e.metrics.ObserveRefresh(nil, failed, started)
	e.publish()
	return nil
}

// RefreshPrice re-reads the pair reserves and updates the cached global
// price. Errors become the error sentinel, never a crash.
func (e *Engine) RefreshPrice(ctx context.Context) {
	e.mu.RLock()
	normalizer := e.normalizer
	e.mu.RUnlock()
	if normalizer == nil {
		return
	}

	var point model.PricePoint
	reserves, err := e.reader.Reserves(ctx)
	if err != nil {
		e.logger.Warn("price refresh failed", zap.Error(err))
		point = model.PricePoint{Status: model.PriceError, Token0IsPdai: normalizer.Token0IsPdai()}
	} else {
		point = normalizer.Normalize(reserves)
	}

	e.mu.Lock()
	e.pricePoint = point
	e.mu.Unlock()
	e.metrics.ObservePrice(string(point.Status))
}

// ListLocks returns the current Lock list in registry order.
func (e *Engine) ListLocks() []model.Lock {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.Lock, len(e.locks))
	copy(out, e.locks)
	return out
}

// GlobalPrice returns the latest normalized price state.
func (e *Engine) GlobalPrice() model.PricePoint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pricePoint
}

// SessionInfo describes the connected session.
type SessionInfo struct {
	Connected bool   `json:"connected"`
	Owner     string `json:"owner,omitempty"`
	ChainID   string `json:"chainId,omitempty"`
}

// Session reports the current session state.
func (e *Engine) Session() SessionInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	info := SessionInfo{Connected: e.connected}
	if e.connected {
		info.Owner = model.NormalizeAddress(e.owner.Hex())
		info.ChainID = e.chainID.String()
	}
	return info
}

// CurrentSnapshot builds the render payload from cached state only; it
// issues no remote reads.
func (e *Engine) CurrentSnapshot() Snapshot {
	now := e.now()

	e.mu.RLock()
	defer e.mu.RUnlock()

	snapshot := Snapshot{
		Price:       buildPriceView(e.pricePoint),
		Locks:       make([]LockView, 0, len(e.locks)),
		GeneratedAt: now.Unix(),
	}
	if e.connected {
		snapshot.Owner = model.NormalizeAddress(e.owner.Hex())
		snapshot.ChainID = e.chainID.String()
	}
	for _, lock := range e.locks {
		snapshot.Locks = append(snapshot.Locks, buildLockView(lock, now))
	}
	return snapshot
}

func (e *Engine) publish() {
	e.notifier.Publish(e.CurrentSnapshot())
}

// fallbackLockLocked builds the Lock for a vault whose remote reads failed
// this cycle. Caller holds e.mu. A previously merged Lock is reused as-is;
// a never-read vault falls back to registry values.
func (e *Engine) fallbackLockLocked(ref model.VaultRef) model.Lock {
	if lock, ok := e.prev[ref.Address]; ok {
		lock.Stale = true
		return lock
	}
	return model.Lock{
		Address:    ref.Address,
		Threshold:  ref.Threshold,
		UnlockTime: ref.UnlockTime,
		Stale:      true,
	}
}

// mergeLock combines a registry reference with a successful remote read.
// Remote values win; the registry copy only fills fields the contract did
// not report.
func mergeLock(ref model.VaultRef, state model.VaultState) model.Lock {
	lock := model.Lock{
		Address:      ref.Address,
		Threshold:    state.Threshold,
		UnlockTime:   state.UnlockTime,
		Balance:      state.Balance,
		CurrentPrice: state.CurrentPrice,
		CanWithdraw:  state.CanWithdraw,
		Withdrawn:    state.Withdrawn,
	}
	if lock.Threshold == nil {
		lock.Threshold = ref.Threshold
	}
	if lock.UnlockTime == 0 {
		lock.UnlockTime = ref.UnlockTime
	}
	return lock
}

func (e *Engine) startTickers(ctx context.Context) {
	e.tickerMu.Lock()
	defer e.tickerMu.Unlock()

	tctx, cancel := context.WithCancel(ctx)
	e.tickerCancel = cancel

	e.tickerWG.Add(2)
	go func() {
		defer e.tickerWG.Done()
		clock.Every(tctx, e.priceInterval, e.RefreshPrice)
	}()
	go func() {
		defer e.tickerWG.Done()
		clock.Every(tctx, e.renderInterval, func(context.Context) {
			e.publish()
		})
	}()
}

func (e *Engine) stopTickers() {
	e.tickerMu.Lock()
	defer e.tickerMu.Unlock()

	if e.tickerCancel == nil {
		return
	}
	e.tickerCancel()
	e.tickerWG.Wait()
	e.tickerCancel = nil
}
