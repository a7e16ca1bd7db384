// Package sortedmap provides the copy-on-write ordered cell container the
// store is built on. The one capability everything else depends on is the
// constant-time Clone: the store clones the current map for every mutation
// attempt, applies its changes to the private clone, and publishes the clone
// with a single atomic swap. Without structural sharing, every batch merge
// would pay a full deep copy.
//
// The implementation wraps github.com/tidwall/btree, whose Copy gives both
// trees copy-on-write semantics: nodes are shared until one side writes to
// them.
package sortedmap
