package session

// Package session holds the process-wide authentication state and persists
// it through a pluggable Storage. Persisted records older than the retention
// window are discarded on every restore.
