package domain

import (
	"os"
	"time"
)

// RouteRecord describes one served application route. The registry
// persists these across restarts so routes can be re-announced without
// re-registration.
type RouteRecord struct {
	ID         string    `json:"id"`
	BundleName string    `json:"bundle_name"`
	BundlePath string    `json:"bundle_path"`
	Route      string    `json:"route"`
	StartTime  time.Time `json:"start_time"`
	IsRunning  bool      `json:"is_running"`
}

// Validate checks the structural fields a record must carry before it may
// be persisted.
func (r RouteRecord) Validate() error {
	if r.ID == "" {
		return ErrMissingArgument.WithDetails("route record id is empty")
	}
	if r.Route == "" {
		return ErrMissingArgument.WithDetails("route path is empty")
	}
	if r.BundlePath == "" {
		return ErrMissingArgument.WithDetails("bundle path is empty")
	}
	return nil
}

// BundleExists reports whether the record's backing bundle is still
// present on disk. Records whose bundle vanished are pruned at load time.
func (r RouteRecord) BundleExists() bool {
	_, err := os.Stat(r.BundlePath)
	return err == nil
}
