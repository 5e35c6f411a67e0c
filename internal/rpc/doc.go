// Package rpc exposes the diagnostics query interface over gRPC.
//
// The service battwatch.v1.Diagnostics uses only protobuf well-known types,
// so no generated code is required:
//
//	GetLatest(google.protobuf.Empty)   returns (google.protobuf.Struct)
//	ListSamples(google.protobuf.Empty) returns (google.protobuf.ListValue)
//	Health(google.protobuf.Empty)      returns (google.protobuf.Struct)
//
// Struct and ListValue payloads carry the same JSON documents served by
// /api/latest, /api/all and /api/health.
//
// Register(srv, svc) attaches a DiagnosticsServer to a *grpc.Server; guard
// the server with auth.APIKeyInterceptor. Client wraps a *grpc.ClientConn,
// attaches the API key to every call and decodes responses into Go types.
package rpc
