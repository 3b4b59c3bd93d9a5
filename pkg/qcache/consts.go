package qcache

import "time"

const (
	// DefaultStaleTime is the default QueryOptions.StaleTime: data is
	// considered stale as soon as it lands.
	DefaultStaleTime = time.Duration(0)

	// DefaultGCTime is the default QueryOptions.GCTime: an observer-less
	// query is removed from its cache 5 minutes after its last observer
	// unsubscribes.
	DefaultGCTime = 5 * time.Minute

	// DefaultRetryCount is the default number of retries for a browser-like
	// environment.
	DefaultRetryCount = 3

	// DefaultServerRetryCount is the retry count for a server-side
	// environment. Nothing applies it automatically: resolveQueryOptions
	// defaults every query to DefaultRetryCount whatever the environment.
	DefaultServerRetryCount = 0

	// DefaultMaxRetryDelay caps the exponential backoff used by
	// DefaultRetryDelay.
	DefaultMaxRetryDelay = 30 * time.Second

	// DefaultBaseRetryDelay is the base of DefaultRetryDelay's exponential
	// growth.
	DefaultBaseRetryDelay = 1 * time.Second
)
