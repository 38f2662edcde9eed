// Package tier implements the cache-invalidation tiers the watchdog escalates
// through.
//
//   - [QueryInvalidator] (tier 1) drops every query-cache entry and makes all
//     future reads stale.
//   - [SessionInvalidator] (tier 2) refreshes the session and drops the
//     response-cache entries of its protocol family.
//   - [StorageInvalidator] (tier 3) deletes durable keys and object databases
//     that are not authentication-critical, plus response-cache entries not
//     tagged critical.
//   - [ReloadInvalidator] (tier 4) deletes everything, writes the reload
//     marker and restarts the process. It runs at most once per process.
//   - [LightInvalidator] is the reduced tier 1 used by the health monitors.
//
// Collaborators are consumed through small interfaces ([QueryCache],
// [ResponseCache], [SessionProvider], storage.KVStore, storage.ObjectDB,
// [Restarter]) so tests can inject failing fakes.
package tier
