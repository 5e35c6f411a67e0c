// Package auth guards the battwatch query surfaces with a shared API key.
//
// A Guard holds the header name, the key and the exempt request names.
// APIKeyInterceptor applies it to gRPC unary calls, keyed by full method
// name; Middleware applies it to HTTP handlers, keyed by path. Health probes
// are normally exempt.
//
// When mode != "apikey" or key == "", every request passes through, which is
// the default for local development. A missing or wrong key yields
// codes.Unauthenticated over gRPC and 401 over HTTP.
package auth
