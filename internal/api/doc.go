// Package api exposes the assistant over HTTP.
//
// Surface:
//   - POST /api/v1/chat/stream                    SSE command streaming
//   - GET/POST /api/v1/sessions                   session listing and creation
//   - GET /api/v1/sessions/{id}                   session detail
//   - GET /api/v1/sessions/{id}/messages          conversation history
//   - DELETE /api/v1/sessions/{id}                archive
//   - POST /api/v1/sessions/cleanup               sweep the caller's stale sessions
//   - POST /api/v1/sessions/{id}/knowledge-base   bind a knowledge base
//   - GET /api/v1/knowledge-bases                 per-user catalog
//   - GET /api/v1/status                          breaker states and metrics
//   - GET /health, GET /ready                     probes, outside the stack
//
// Requests pass through Recovery → RequestID → Logging → CORS → RateLimit
// → Auth before reaching a handler. Authentication is a JWT bearer token
// validated by internal/auth; with no validator configured the API trusts
// the X-User-ID header, for deployments behind an authenticating gateway.
//
// The chat stream relays orchestrator fragments one-to-one as SSE events:
// the event name is the fragment type, the data is the JSON fragment.
package api
