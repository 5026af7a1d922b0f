package constants

type StorageMode int
type DispatchMode int

const (
	StorageModeUnknown StorageMode = iota
	StorageModeFull
	StorageModeDelta
)

const (
	DispatchModeUnknown DispatchMode = iota
	DispatchModeInTransaction
	DispatchModeOutbox
)

func (m StorageMode) String() string {
	switch m {
	case StorageModeFull:
		return "full"
	case StorageModeDelta:
		return "delta"
	default:
		return "unknown"
	}
}

var storageModeMap = map[string]StorageMode{
	"full":    StorageModeFull,
	"delta":   StorageModeDelta,
	"unknown": StorageModeUnknown,
}

func ParseStorageMode(s string) StorageMode {
	if mode, ok := storageModeMap[s]; ok {
		return mode
	}
	return StorageModeUnknown
}

func (m DispatchMode) String() string {
	switch m {
	case DispatchModeInTransaction:
		return "in_transaction"
	case DispatchModeOutbox:
		return "outbox"
	default:
		return "unknown"
	}
}

var dispatchModeMap = map[string]DispatchMode{
	"in_transaction": DispatchModeInTransaction,
	"outbox":         DispatchModeOutbox,
	"unknown":        DispatchModeUnknown,
}

func ParseDispatchMode(s string) DispatchMode {
	if mode, ok := dispatchModeMap[s]; ok {
		return mode
	}
	return DispatchModeUnknown
}
