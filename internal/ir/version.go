package ir

// EngineVersion is the rollcall engine version, reported by the CLI and
// the health endpoint.
const EngineVersion = "0.1.0"
