/*
Package s3 provides a read-only origin store backed by an AWS S3 bucket.

Cache volumes are filled from the origin. When the origin library lives in
object storage rather than on a local mount, the placement engine streams
objects out of a bucket prefix through this package.

# Architecture Overview

	┌─────────────────────────────────────────────┐
	│           types.OriginStore                 │
	│         (Stat / Open by object path)        │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│              S3 Backend                     │
	│  path validation │ retry │ error mapping    │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│          aws-sdk-go-v2 S3 client            │
	│      HeadObject        │     GetObject      │
	└─────────────────────────────────────────────┘

Object paths are relative to the configured prefix:

	prefix "films/share" + path "a/movie.mp4" -> key "films/share/a/movie.mp4"

# Configuration

	origin:
	  backend: s3
	  s3:
	    bucket: media-origin
	    prefix: films/share
	    region: us-west-2
	    endpoint: http://minio:9000   # optional, for S3-compatible services
	    force_path_style: true

Credentials come from the default AWS chain (environment, shared config,
instance role).

# Error Mapping

	NoSuchKey, NotFound        -> OBJECT_NOT_FOUND
	AccessDenied, Forbidden    -> ACCESS_DENIED
	NoSuchBucket               -> INVALID_CONFIG
	network failures           -> CONNECTION_FAILED (retried)
	anything else              -> STORAGE_READ (retried)
*/
package s3
