// Package recordio reads an unbounded sequence of Thrift binary-encoded
// records from a byte stream.
//
// The stream carries no record count. A Reader detects exhaustion by peeking
// a single byte through an internal lookahead buffer, so checking for more
// data never consumes input. Each record is decoded into a fresh instance
// obtained from a caller-supplied factory.
package recordio
