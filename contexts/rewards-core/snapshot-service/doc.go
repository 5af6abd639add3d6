// Package snapshotservice materializes per-period token holder balance
// snapshots from the external holder index.
//
// The module owns the snapshot tables and exposes an HTTP collect/get surface
// plus the outbox relay worker entrypoint. Collection is cursor-resumable:
// each stored page advances the persisted cursor, so an interrupted run
// continues instead of restarting.
package snapshotservice
