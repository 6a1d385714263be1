// Package diffwrite streams bytes into a flash region while minimizing
// erase operations.
//
// Erase is the dominant cost of reprogramming flash and wears the medium,
// so the writer compares every incoming page against the region's existing
// content and only passes changed pages through erase+program. Contiguous
// dirty pages accumulate into runs bounded by the configured buffer
// capacity, amortizing erase overhead across large unchanged spans:
// re-uploading an identical image erases nothing at all.
//
// The writer never selects a boot target or restarts anything. Activation
// is a separate, explicit registry call, so callers stage data into a
// non-running region and switch over afterwards.
package diffwrite
