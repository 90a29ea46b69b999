// Package types defines the data structures tilegraph reports to the
// outside world: run reports written as JSON and served by the status API.
package types
