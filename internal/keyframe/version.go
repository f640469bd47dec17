package keyframe

// Version constants for the keyframe wire format and the tool.
const (
	// FormatVersion is the keyframe wire format version.
	FormatVersion = "1"

	// ToolVersion is the kfreplay version.
	ToolVersion = "0.1.0"
)
