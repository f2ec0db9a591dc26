package state

// Attribute names shared by the builder and the readers of a constructed store.
const (
	SpansAttribute     = "spans"
	LogsAttribute      = "logs"
	ResourcesAttribute = "resources"
)
