package service

// ExportedRunningGuard is an alias so the _test package can exercise the guard.
type ExportedRunningGuard = runningJobsGuard
