// Package clips coordinates short video clip metadata with client-direct
// uploads to an object store.
//
// A clip record lives in a partitioned record store (keyed by owner and clip
// id) and references up to two objects in a blob store: the video and an
// optional thumbnail. The Service creates records together with
// time-scoped write grants, resolves fresh read grants for playback, applies
// engagement mutations with compare-and-swap retries, and removes objects
// before records on delete.
//
// Repository implementations live under repo/ (memory, postgres, dynamo,
// redis) and BlobStore implementations under storage/ (memory, fs, s3,
// minio). Records and objects can drift apart when one of the two stores
// fails mid-operation; the reconcile subpackage repairs that drift.
package clips
