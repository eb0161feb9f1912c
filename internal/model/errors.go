package model

import "errors"

// Error taxonomy surfaced by the engine. Per-vault read failures never
// abort a refresh batch; user-initiated write failures always propagate to
// the caller.
var (
	ErrConnectionFailed  = errors.New("wallet or network unreachable")
	ErrInvalidInput      = errors.New("invalid input")
	ErrRemoteReadFailed  = errors.New("remote read failed")
	ErrAddressUnresolved = errors.New("vault created but address unresolved")
	ErrTransactionFailed = errors.New("transaction failed")
	ErrBusy              = errors.New("another transaction is pending")
	ErrNotConnected      = errors.New("not connected")
)
