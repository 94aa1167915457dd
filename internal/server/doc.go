// Package server exposes the engine over HTTP.
//
// # Routes
//
// [Server.Routes] builds a chi router with request IDs, panic recovery, Prometheus metrics and
// request logging applied to every route:
//
//   - GET /Items/{itemId}/InstantMix builds a mix with the [Mixer] and answers in the media
//     server's item envelope
//   - /AudioMuseAI/... relays a fixed route table to the similarity backend, passing status and
//     body through unchanged
//   - POST /AudioMuseAI/fingerprint/sweep starts a fingerprint sweep, 409 while one runs
//   - GET /metrics serves the Prometheus registry
//
// [Middleware] wraps handlers in the standard Go pattern.
package server
