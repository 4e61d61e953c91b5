// Package provider feeds telemetry into the external data namespace.
//
// A Source declares its data as a table of Fields. The Poller reads every
// field of every source on a cron schedule, publishes the values under the
// source name and withdraws tokens a source stops declaring. When a whole
// source fails its check, all of its entries are withdrawn at once so
// formulas report the data as unavailable instead of using stale values.
//
// Sources that hold a live connection implement Runner; the poller runs them
// for as long as it runs itself.
package provider
