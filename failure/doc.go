// Package failure records operation failures, classifies their patterns,
// and maintains the strategy blacklist that the resilience engine consults
// before every attempt.
//
// The Analyzer is the entry point. It wraps a Store (durable or in-memory),
// detects failure patterns over the recent history of an operation, and
// promotes repeatedly-failing (strategy, operation) pairs to the blacklist.
package failure
