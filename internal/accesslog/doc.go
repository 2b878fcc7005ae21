// Package accesslog reads nginx access logs as a stream of view events.
package accesslog
