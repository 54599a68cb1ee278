// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package harbor provides the server loop which drives accepted
// connections through protocol specific handlers.
//
// A Server owns one conn.Acceptor, possibly the top of a stack of
// wrapping listeners, and serves every accepted connection on its own
// goroutine, dispatching by negotiated protocol version to HTTP/1.1,
// HTTP/2 or HTTP/3 builders. Shutdown is driven through a ServerHandle:
// a forcible stop cancels in-flight connections at their next
// cooperative checkpoint, while a graceful stop lets them drain,
// optionally bounded by a timeout.
package harbor
