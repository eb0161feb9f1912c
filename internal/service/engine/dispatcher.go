package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/vaultwatch/vaultwatch-backend/internal/model"
	"github.com/vaultwatch/vaultwatch-backend/pkg/fixedpoint"
)

// Accepted unlock datetime layouts: the HTML datetime-local formats plus
// RFC3339 for API callers.
var datetimeLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// CreateVault parses the threshold price and unlock datetime, submits the
// creation transaction, waits for confirmation, and registers the new
// vault. The registry is only touched after the address is recovered from
// the creation event.
func (e *Engine) CreateVault(ctx context.Context, priceStr, datetimeStr string) (model.VaultRef, error) {
	if !e.Session().Connected {
		return model.VaultRef{}, model.ErrNotConnected
	}

	threshold, err := fixedpoint.Parse(priceStr)
	if err != nil {
		return model.VaultRef{}, fmt.Errorf("%w: threshold price: %s", model.ErrInvalidInput, err)
	}
	unlockTime, err := parseDatetime(datetimeStr)
	if err != nil {
		return model.VaultRef{}, fmt.Errorf("%w: unlock datetime: %s", model.ErrInvalidInput, err)
	}

	release, err := e.acquireTx()
	if err != nil {
		return model.VaultRef{}, err
	}
	defer release()

	created, err := e.sender.CreateVault(ctx, threshold, unlockTime)
	if err != nil {
		// ErrAddressUnresolved passes through unchanged: the vault does
		// exist on chain, the caller has to surface that distinctly.
		return model.VaultRef{}, err
	}

	ref := model.VaultRef{
		Address:    model.NormalizeAddress(created.Vault.Hex()),
		Threshold:  created.Threshold,
		UnlockTime: created.UnlockTime,
		Source:     model.RefSourceCreated,
	}
	if _, err := e.registry.Add(ctx, e.ownerHex(), ref); err != nil {
		return ref, fmt.Errorf("register created vault %s: %w", ref.Address, err)
	}

	e.logger.Info("vault created",
		zap.String("vault", ref.Address),
		zap.String("threshold", fixedpoint.Raw(ref.Threshold)),
		zap.Int64("unlock_time", ref.UnlockTime),
	)

	e.refreshAfterAction(ctx)
	return ref, nil
}

// WithdrawVault submits the withdrawal for a tracked vault and refreshes
// after confirmation. On failure the Lock's prior state is left untouched.
func (e *Engine) WithdrawVault(ctx context.Context, address string) error {
	if !e.Session().Connected {
		return model.ErrNotConnected
	}
	if !common.IsHexAddress(address) {
		return fmt.Errorf("%w: address %q", model.ErrInvalidInput, address)
	}

	release, err := e.acquireTx()
	if err != nil {
		return err
	}
	defer release()

	if err := e.sender.Withdraw(ctx, common.HexToAddress(address)); err != nil {
		return err
	}

	e.logger.Info("vault withdrawn", zap.String("vault", model.NormalizeAddress(address)))
	e.refreshAfterAction(ctx)
	return nil
}

// RemoveVault deletes a vault from the registry. No chain interaction.
func (e *Engine) RemoveVault(ctx context.Context, address string) error {
	if !e.Session().Connected {
		return model.ErrNotConnected
	}
	if !common.IsHexAddress(address) {
		return fmt.Errorf("%w: address %q", model.ErrInvalidInput, address)
	}

	if err := e.registry.Remove(ctx, e.ownerHex(), address); err != nil {
		return fmt.Errorf("remove vault %s: %w", model.NormalizeAddress(address), err)
	}

	e.refreshAfterAction(ctx)
	return nil
}

// TrackVault adds a manually entered vault address to the registry.
// Returns false without error when the address is already tracked.
func (e *Engine) TrackVault(ctx context.Context, address string) (bool, error) {
	if !e.Session().Connected {
		return false, model.ErrNotConnected
	}
	if !common.IsHexAddress(address) {
		return false, fmt.Errorf("%w: address %q", model.ErrInvalidInput, address)
	}

	added, err := e.registry.Add(ctx, e.ownerHex(), model.VaultRef{
		Address: model.NormalizeAddress(address),
		Source:  model.RefSourceManual,
	})
	if err != nil {
		return false, fmt.Errorf("track vault %s: %w", model.NormalizeAddress(address), err)
	}
	if added {
		e.refreshAfterAction(ctx)
	}
	return added, nil
}

func (e *Engine) ownerHex() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.owner.Hex()
}

// acquireTx takes the single transaction slot without blocking; a caller
// that finds the slot occupied gets ErrBusy.
func (e *Engine) acquireTx() (func(), error) {
	select {
	case e.txMu <- struct{}{}:
		return func() { <-e.txMu }, nil
	default:
		return nil, model.ErrBusy
	}
}

// refreshAfterAction folds a completed action back into the Lock list. A
// failed refresh here is logged, not returned: the action itself already
// succeeded.
func (e *Engine) refreshAfterAction(ctx context.Context) {
	if err := e.RefreshAll(ctx); err != nil {
		e.logger.Warn("post-action refresh failed", zap.Error(err))
	}
}

func parseDatetime(s string) (int64, error) {
	for _, layout := range datetimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("unparseable datetime %q", s)
}
