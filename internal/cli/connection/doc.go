// Package connection provides server connectivity for docrelayctl.
//
// Two transports are supported:
//
//   - APIClient talks to the HTTP API with optional bearer token auth
//   - SocketClient talks to the local management Unix socket
//
// Both return decoded responses; HTTP errors carry the server's error
// code and message.
package connection
