/*
Package placement copies popular objects from the origin onto cache volumes,
evicting the least popular cached objects when no volume has room.

# Algorithm

Candidates are handled one at a time, in the order given:

	for each candidate:
	    loop:
	        v := first volume (priority order) with free > size
	        if v != nil: copy origin -> v, done
	        if pool empty: CAPACITY_EXHAUSTED, next candidate
	        evict pool.min (lowest views, then path), retry

The eviction pool is the set of objects cached when the pass starts, so an
object placed earlier in the same pass is never evicted by a later one. A
candidate that cannot fit on any volume even with that volume's whole share
of the pool removed fails straight away and evicts nothing.

Free space is read live from the volume on every check. In dry-run mode the
engine tracks the bytes it would have written and freed per volume instead of
touching the disk.

# Invariants

  - A volume never receives more bytes than the free space observed when the
    placement was decided.
  - Only cache-resident objects are evicted. Reaching eviction with an
    origin-resident object returns ORIGIN_PROTECTED, which aborts the run.
  - A failed copy leaves neither the object nor a temp file behind, and the
    object stays on the origin.

# Moving Data

FSMover streams from a types.OriginStore into a temp file named with
inventory.TempPrefix in the destination directory, fsyncs it and renames it
into place. Removal deletes the file and prunes parent directories that are
left empty, stopping at the volume root.
*/
package placement
