package usecase

const (
	// DefaultListLimit is the page size used when the caller sends none.
	DefaultListLimit = 50

	// MaxListLimit caps the page size of movement listings.
	MaxListLimit = 200

	// MinSplitAllocations is the smallest allocation list a split accepts.
	MinSplitAllocations = 2

	// Operation names used for metrics and logs.
	opCreate      = "create"
	opSplit       = "split"
	opUpdateSplit = "update_split"
	opUnsplit     = "unsplit"
	opDistribute  = "distribute"
	opDelete      = "delete"
	opList        = "list"
)
