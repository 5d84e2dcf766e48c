// Package client is the resilient HTTP client every backend call goes
// through.
//
// # Overview
//
// A call runs through four stages, each a method on Client:
//  1. injectAuth attaches "Authorization: Bearer <token>" from the TokenStore.
//  2. dispatch sends the request, bounded by the call timeout, and turns
//     non-2xx statuses into *ResponseError.
//  3. Normalize maps every other failure to *NetworkError or
//     *UnexpectedError.
//  4. applyPolicy decides what the failure means locally.
//
// # Policy
//
// A 401 clears the token and is returned; it is never cached or queued.
// A *NetworkError on a GET with WithCache is answered from the cache,
// ignoring expiry, and the call succeeds. A *NetworkError on POST, PUT,
// PATCH or DELETE queues the request and is returned with QueuedID set.
// Everything else is returned unchanged. While the client is offline no
// request is sent and the same policy runs on a synthesized ErrOffline.
//
// # Replay
//
// OnConnectivityChange starts a Drain on the offline → online edge. Queued
// requests are replayed through the same pipeline; IsRetryable decides which
// failures stay queued. Concurrent drains share one pass. A client starts
// online, so requests restored by Init are replayed by Resume.
//
// # Error Handling
//
// Match with errors.Is: ErrUnauthorized, ErrUnavailable, ErrOffline. Use
// errors.As for *ResponseError status and details or the *NetworkError
// queue receipt.
package client
