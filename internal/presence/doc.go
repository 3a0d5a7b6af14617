// Package presence keeps a live registry of the hosts a router reports and
// tells subscribers when it changes.
//
// The Engine polls a router.Client. Each scan reconciles the router's host
// snapshot into the Registry: unknown MAC addresses get a new Record, known
// ones are updated in place. Records are never evicted, so a device that
// leaves the router's table keeps its last known state.
//
// After every successful poll the engine signals two topics, scoped to the
// router it polls:
//   - device-updated, always
//   - device-new, afterwards, when the scan created at least one record
//
// Signals carry no payload. Subscribers re-read the registry, which only
// hands out copies.
//
// Setup failures (unreachable router, rejected credentials, profile
// problems) are classified once into a Status. A failed engine stays
// constructed but its scans do nothing.
//
// Usage:
//
//	engine := presence.New(ctx, tr064.Authenticate, routerCfg, presence.Options{Logger: log})
//	if !engine.Status().OK {
//	    log.Error("router setup failed", "kind", engine.Status().Kind)
//	}
//	unsubscribe := engine.Subscribe(engine.TopicDeviceUpdated(), func() {
//	    for _, rec := range engine.Devices().All() {
//	        fmt.Println(rec.MAC, rec.Connected)
//	    }
//	})
//	defer unsubscribe()
//
//	sched := presence.NewScheduler(engine, 30*time.Second, presence.SchedulerOptions{})
//	sched.Start(ctx)
//	defer sched.Stop()
package presence
