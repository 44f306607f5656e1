// Package service exposes the engine and the dispatcher over two local
// Unix-socket services.
//
// Both services share one exchange model: a client connects, writes its
// whole request, closes its write side and reads the response until EOF.
// One request per connection, no pipelining. Connections on a socket are
// handled strictly one after another.
//
// The query service speaks JSON (a UserQuery in, a list of projected
// value maps out). The notification service speaks the tagged binary
// encoding of ir values and acknowledges with a 4-byte big-endian status.
//
// A request that cannot be decoded aborts its connection without a
// response. Nothing a client sends can stop a server.
package service
