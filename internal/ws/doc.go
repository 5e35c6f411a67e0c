// Package ws implements the live diagnostics stream mounted at /ws/stream.
//
// A Hub pushes the latest derived record to every connected client once per
// interval, and sends it straight away on connect. Each frame is
//
//	{"event": "latest", "data": <same schema as GET /api/latest>}
//
// The frame is encoded once per record and shared by all clients. A client
// that falls queueDepth frames behind is disconnected; cancelling the Run
// context disconnects everyone with a going-away close frame.
package ws
