package types

// Version is the canonical project version.
// The CLI, the operation report schema, and the transcript frame
// format share this version.
const Version = "0.3.0"
