// Package store persists group settings in SQLite.
//
// The store holds exactly one settings snapshot plus a revision counter
// that increases on every write. Toggles made through the control API are
// written here so they survive restarts. Membership state is never stored:
// it is recomputed from presence on startup.
//
// The database runs in WAL mode with foreign keys on. Open stamps the
// schema version into user_version and refuses databases from newer
// builds. All reads order rows by position, so a loaded snapshot keeps the
// declaration order it was saved with.
package store
