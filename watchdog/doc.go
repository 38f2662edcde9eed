// Package watchdog times long-running operations and, when one overruns,
// escalates through increasingly destructive cache invalidations to get the
// application unstuck.
//
// # Escalation
//
// Start arms a timer for the first threshold. If Complete arrives first the
// duration is recorded as a hit. Otherwise the timer fires and every tier
// from 1 up to the highest threshold crossed runs in order, one at a time,
// then the timer is re-armed for the next threshold. Each tier is guarded:
// a failure or panic is logged and the next tier still runs. Tiers already
// run for an operation are not repeated for it.
//
// The default schedule is:
//
//	15s  tier 1  clear the query cache, make all reads stale
//	25s  tier 2  refresh the session, drop its cached responses
//	35s  tier 3  clear durable storage except authentication-critical data
//	45s  tier 4  clear everything, write the reload marker, restart
//
// Tier 4 runs at most once per process. On startup the reload marker it wrote
// is consumed; a marker younger than ReloadCooldown suppresses tier 4 so a
// restart cannot loop.
//
// # Usage
//
//	wd, err := watchdog.New(cfg,
//	    watchdog.WithCollaborators(watchdog.Collaborators{
//	        Query:     queryCache,
//	        Responses: responseCache,
//	        Session:   sessions,
//	        KV:        store,
//	        Objects:   store,
//	        Restarter: tier.ExecRestarter{BeforeExec: store.Close},
//	    }),
//	    watchdog.WithObserver(obs),
//	)
//	if err != nil {
//	    return err
//	}
//	go wd.RunMonitors(ctx, nil)
//
//	err = wd.Watch(ctx, "patient-list-fetch", func(ctx context.Context) error {
//	    return fetchPatients(ctx)
//	})
//
// ClearCache runs tiers on demand (never tier 4). Stats returns counters,
// the configuration, and the last ten actions.
package watchdog
