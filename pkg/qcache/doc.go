// Package qcache is a framework-agnostic asynchronous data-fetching and
// caching engine. It maintains an in-memory store of queries (read-only
// fetches identified by a key) and mutations (write operations), deduplicates
// in-flight work, serves cached data while revalidating, retries with backoff
// under transient failures, pauses and resumes work with network and
// window-focus state, and notifies subscribers of state changes in batched
// tasks.
//
// The package defines no networking protocol and no UI: callers supply the
// fetch and mutate functions and the engine is agnostic to transport. UI
// bindings are expected to consume a Query/MutationObserver from outside this
// package.
package qcache
