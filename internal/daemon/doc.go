// Package daemon keeps orca alive unattended: it detaches a worker
// process, records heartbeats on a cron schedule, guards against escaped
// errors and panics, and owns the PID file.
package daemon
