// Package status derives the discrete unlock classification and the human
// countdown from raw lock fields. Everything here is pure so the engine can
// be tested without a chain.
package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/vaultwatch/vaultwatch-backend/internal/model"
)

// Status is the discrete unlock classification of one lock.
type Status string

const (
	Locked     Status = "LOCKED"
	Unlockable Status = "UNLOCKABLE"
	Withdrawn  Status = "WITHDRAWN"
)

// Classify maps a lock to its status. Withdrawn takes precedence over
// unlockable; eligibility itself is the contract-computed CanWithdraw flag
// and is never recomputed locally.
func Classify(lock model.Lock) Status {
	switch {
	case lock.Withdrawn:
		return Withdrawn
	case lock.CanWithdraw:
		return Unlockable
	default:
		return Locked
	}
}

// Countdown renders the remaining time until unlockTime as days, hours,
// minutes, and seconds. Leading zero units are omitted; the seconds unit is
// always shown. An elapsed or unset unlock time yields "0s".
func Countdown(now time.Time, unlockTime int64) string {
	remaining := unlockTime - now.Unix()
	if remaining <= 0 {
		return "0s"
	}

	days := remaining / 86400
	hours := (remaining % 86400) / 3600
	minutes := (remaining % 3600) / 60
	seconds := remaining % 60

	parts := make([]string, 0, 4)
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 || len(parts) > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || len(parts) > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	parts = append(parts, fmt.Sprintf("%ds", seconds))

	return strings.Join(parts, " ")
}
