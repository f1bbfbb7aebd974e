// Package tlsroots holds the TLS plumbing shared by the DocRelay server
// and its backup client.
//
// Pool builds an x509 trust pool from the system roots plus custom CA
// files, for verifying the remote backup endpoint. Watcher serves the
// server's own certificate and reloads it when the files change on disk,
// so certificates can be rotated without a restart.
package tlsroots
