// Package storage provides the durable client storage the watchdog's third and
// fourth tiers sweep: a key/value store and named structured object
// databases, both backed by an embedded BadgerDB.
//
// Keys that hold authentication material are recognised by a fixed denylist
// pattern (see CriticalMatcher) so that sweeps below the full-reload tier can
// leave the user logged in. The package also owns the one-shot reload marker
// that lets a freshly restarted process detect it was just force-reloaded.
package storage
