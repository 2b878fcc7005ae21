/*
Package types holds the data model and the collaborator contracts shared by
the mediacache packages.

# Data Model

	MediaObject ──► RelativePath   identity, unique across all volumes
	            ──► SizeBytes      from whichever store holds it
	            ──► CumulativeViews ranking score, never decreases
	            ──► Location       OriginLocation or a volume index

A Location is either the origin or the index of a cache volume in configured
priority order. Index 0 is tried first during placement.

# Contracts

	OriginStore  read-only source of objects (filesystem or S3)
	LedgerStore  persisted relativePath → views map (JSON file or Redis)
	EventFeed    access events parsed from web server logs
	ObjectSet    read side of the cache inventory
	RunRecorder  sink for placement and eviction outcomes (metrics)

None of the contracts expose a way to write or delete on the origin.
*/
package types
