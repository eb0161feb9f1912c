package engine

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vaultwatch/vaultwatch-backend/internal/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// Registry persists vault references per owner.
	Registry interface {
		List(ctx context.Context, owner string) ([]model.VaultRef, error)
		Add(ctx context.Context, owner string, ref model.VaultRef) (bool, error)
		Remove(ctx context.Context, owner, address string) error
	}

	// ChainReader reads remote vault and pair state.
	ChainReader interface {
		ChainID(ctx context.Context) (*big.Int, error)
		TokenOrdering(ctx context.Context) (token0IsPdai bool, err error)
		Reserves(ctx context.Context) (model.Reserves, error)
		VaultState(ctx context.Context, vault common.Address) (model.VaultState, error)
		OwnerVaults(ctx context.Context, owner common.Address) ([]model.VaultRef, error)
	}

	// TxSender submits transactions and waits for confirmation.
	TxSender interface {
		CreateVault(ctx context.Context, threshold *big.Int, unlockTime int64) (model.CreatedVault, error)
		Withdraw(ctx context.Context, vault common.Address) error
	}

	// Wallet identifies the session signer.
	Wallet interface {
		Address() common.Address
	}

	// Notifier is the external render sink; the engine emits snapshots,
	// a renderer subscribes.
	Notifier interface {
		Publish(snapshot Snapshot)
	}

	// Metrics records refresh cycle outcomes.
	Metrics interface {
		ObserveRefresh(err error, failedVaults int, started time.Time)
		ObservePrice(priceStatus string)
	}
)
