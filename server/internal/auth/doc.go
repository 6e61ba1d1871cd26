// Package auth guards the ingestion endpoint of beacon-server.
//
// APIKeyInterceptor(mode, header, key) returns a gRPC UnaryServerInterceptor
// that checks the API key carried in the named metadata header. With mode
// other than "apikey", or with no key configured, every call passes.
package auth
