// Package config loads and watches the battwatch configuration file.
//
// Top-level sections:
//   - dataset: path to the JSON sample array (default data/enc_data.json)
//   - scheduler: interval between ticks (default 3s)
//   - server: http_port (default 4000, overridden by $PORT), grpc_port
//     (default 50051, 0 disables), auth (apikey|none), cors.allowed_origins
//   - stream: WebSocket broadcast interval (default 3s)
//   - alerts: rules and webhook targets (slack|teams|http|pushover)
//   - redis: optional latest-record mirror; disabled when addr is empty
//   - log: level (debug|info|warn|error) and format (json|text)
//
// Load(path) applies defaults before unmarshalling, then validates.
//
// Watch(ctx, path, onChange) uses fsnotify to reload the file on change. Only
// alert rules, webhooks and the log level are meant to be applied live; the
// dataset and intervals are fixed for the process lifetime.
package config
