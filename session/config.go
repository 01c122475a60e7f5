package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/putto11262002/sabaipics-core/txalloc"
)

// Config holds the per-session tunables drawn from the enumerated configuration
// (spec §6). CommandTimeout is not itself one of the enumerated knobs: only
// command_timeout_s is exposed as the ceiling for downloads (§4.2: "≈60s for
// downloads"); the shorter control-operation timeout described alongside it
// ("≈5-10s for control") has no corresponding config key, so DefaultConfig
// fills CommandTimeout from the implementation constant DefaultCommandTimeout;
// callers may still set the field directly.
type Config struct {
	ClientGUID      uuid.UUID
	FriendlyName    string
	CommandTimeout  time.Duration // control operations: OpenSession, CloseSession, GetObjectInfo, polling
	DownloadTimeout time.Duration // command_timeout_s: GetObject, GetPartialObject

	TransactionReserveBlock int
}

// DefaultCommandTimeout is the fixed control-operation deadline (spec §4.2: "≈5-10s
// for control").
const DefaultCommandTimeout = 8 * time.Second

// DefaultConfig returns a Config populated with the enumerated defaults from spec
// §6 (command_timeout_s=60, transaction_reserve_block=32), generating a fresh
// client GUID.
func DefaultConfig(friendlyName string) Config {
	return Config{
		ClientGUID:              uuid.New(),
		FriendlyName:            friendlyName,
		CommandTimeout:          DefaultCommandTimeout,
		DownloadTimeout:         60 * time.Second,
		TransactionReserveBlock: txalloc.DefaultBlockSize,
	}
}
