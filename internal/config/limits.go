package config

const (
	// MessagePageSize is the number of messages fetched per history page.
	// A page shorter than this means the oldest message has been reached.
	MessagePageSize = 20

	// PositionGap is the distance kept between a new top/bottom sibling and
	// its neighbor, and the spacing used when positions are renormalized.
	PositionGap = 1024.0

	// PositionEpsilon is the smallest gap between two neighboring positions
	// that still allows a midpoint insertion. Below it the parent scope must
	// be renormalized.
	PositionEpsilon = 1e-6

	// MaxFolderNameLength is the maximum length for folder, note and chat
	// names in the tree.
	MaxFolderNameLength = 255

	// MaxChatTitleLength is the maximum length for chat titles.
	MaxChatTitleLength = 255

	// MaxMessageLength bounds a single user message.
	MaxMessageLength = 100_000

	// MaxUploadSize bounds a single attachment file in bytes.
	MaxUploadSize = 20 << 20
)
