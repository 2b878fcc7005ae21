/*
Package orchestrator sequences one cache fill run.

	scan volumes ─► today's top ─► reconcile ─► ledger load + merge
	                                                   │
	      ledger save ◄── placement pass ◄── resolve candidates

Reconcile folds today's views into objects that are already cached; those
objects leave the candidate set. The remaining paths are checked against the
origin, registered in the inventory as origin objects and handed to the
placement engine in feed order.

Individual candidates may fail (invalid path, missing on the origin, no
capacity, copy error) without stopping the run, and the ledger is still
rewritten from the final inventory. The run stops early only when the
inventory or ledger cannot be read, when an eviction would touch the origin,
or when the context is canceled. A canceled pass still saves the ledger for
the work already done.
*/
package orchestrator
