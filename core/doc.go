// Package core contains canonical session domain contracts, entities, and
// orchestration logic: the session gateway, the refresh coordinator, and the
// identity reconciler. Lower-level adapters must depend on this package; core
// must not depend on transport-specific or storage-specific adapters.
package core
