// Package repositories implements SQLite persistence for the local track cache and upload history.
//
// Key Implementations:
//   - [TrackRepository] : per-email copy of the backend listing for offline browsing, plus where each track was saved locally
//   - [UploadRepository] : every submitted separation task and how it ended
//
// Rows carry a sequence number for stable ordering independent of UUIDs and timestamps.
// The counters live in dedicated sequence tables and advance inside the inserting transaction.
// Tracks removed from the backend are soft-deleted via deleted_at and excluded from queries.
package repositories
