package events

// Topics emitted by the engine.
const (
	TopicCartSynced    = "cart.synced"
	TopicCartCleared   = "cart.cleared"
	TopicCartOptimized = "cart.optimized"
)
