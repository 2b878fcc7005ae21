/*
Package ledger persists cumulative view counts for cached objects between
runs.

	          ┌──────────────┐  Read / Write   ┌──────────────────┐
	Load ───► │    Ledger    │ ──────────────► │ FileStore (JSON) │
	Merge     │              │                 ├──────────────────┤
	Save ───► │              │                 │ RedisStore (hash)│
	          └──────────────┘                 └──────────────────┘

The ledger only ever describes objects on cache volumes. Save is a full
replacement, so entries for evicted objects disappear after a successful run.
*/
package ledger
