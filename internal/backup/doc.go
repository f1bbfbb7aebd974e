// Package backup implements the remote backup adapter for DocRelay.
//
// The adapter keeps a dirty-flag cache of serialized documents: every
// durable change marks its document dirty, and a periodic (or manual)
// flush uploads the dirty set to a remote object store over HTTP. A flush
// is batch-reported: per-document successes are retained even when the
// batch as a whole fails, so a document uploaded on a partially failed
// flush is not re-uploaded next time.
//
// Authentication is app-key based: the client exchanges its key and
// secret for a bearer token, and re-authenticates exactly once per
// request when the token is rejected. Transient upload failures are
// retried with exponential backoff (1s, 2s, 4s, ...) up to a bounded
// attempt count.
package backup
