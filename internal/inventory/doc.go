// Package inventory enumerates the objects physically present on the cache
// volumes and holds them as the mutable state of a single run.
package inventory
