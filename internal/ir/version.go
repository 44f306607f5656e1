package ir

// Version constants for the record encoding and the binary.
const (
	// RecordVersion is the version of the record envelope encoding.
	RecordVersion = "1"

	// Version is the govbot release version.
	Version = "0.1.0"
)
