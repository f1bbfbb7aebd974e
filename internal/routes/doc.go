// Package routes implements the route persistence registry.
//
// Served application routes are registered here and mirrored to a JSON
// file on every change, so a restarted server re-announces its routes
// without clients re-registering them. Loading prunes records whose
// backing bundle no longer exists on disk; the pruned set is reported so
// callers can log what was dropped.
package routes
