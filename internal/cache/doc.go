// Package cache keeps recently read blob blocks in memory.
//
// Remote blob stores serve a generation in ranged reads; the caching blob
// store puts a BlockCache in front of them so that re-loading an unchanged
// generation, or re-reading its header, does not go back to the network.
//
// LRUBlockCache is a single byte-bounded LRU. ShardedLRUBlockCache spreads
// keys over 64 of them for concurrent loads. Both can reserve their bytes
// against a resource.Controller.
package cache
