/*
Package circuit stops a run from hammering an origin that has stopped
answering.

A Breaker counts consecutive failures. Once MaxFailures is reached it opens
and rejects calls with a non-retryable CONNECTION_FAILED error until Cooldown
has passed; then a single trial call is let through. A successful trial
closes the circuit, a failed one opens it again.

	closed ──(MaxFailures in a row)──► open ──(Cooldown)──► half-open
	   ▲                                 ▲                      │
	   └──────────(trial succeeds)───────┼──────────────────────┤
	                                     └──(trial fails)───────┘

Origin wraps a types.OriginStore. Missing objects and invalid paths are
answers from a healthy origin and never trip the breaker.
*/
package circuit
