// Package transport delivers closed uristat windows to a collector.
//
// Every sink implements [uristat.Sink] plus Close. Windows are encoded once by
// [Encode] into the shared JSON document:
//
//	{"id":"01J...","start":"...","end":"...","bucket_version":0,"dropped":0,
//	 "uris":{"/users/{id}":{"total":{"count":3,"total":25,"max":15,"buckets":[...]},
//	                        "failed":{...}}}}
//
// # Sinks
//
//   - [HTTPSink] POSTs the document to a collector URL.
//   - [GRPCSink] calls /uristat.v1.Collector/Send with a google.protobuf.Struct.
//   - [WebSocketSink] writes one text frame per window over a long-lived connection.
//   - [FileSink] appends one JSON line per window under a cross-process file lock.
//   - [MultiSink] fans out to several sinks and combines their errors.
//
// A failed send is never retried; the caller drops the window.
package transport
