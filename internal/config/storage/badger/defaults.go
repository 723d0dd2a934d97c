package badger

const (
	defaultPath       = "./data/cooldown"
	defaultInMemory   = false
	defaultSyncWrites = false
)
