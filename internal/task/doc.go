// Package task implements the background processing engine for batch
// recognition tasks: a bounded-concurrency dispatcher that walks a task's
// items, and a progress aggregator that folds per-item outcomes into the
// task's counters.
package task
