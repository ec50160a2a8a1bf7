// Package api defines the wire types for the Concierge HTTP API.
//
// This package contains the request structures accepted by the HTTP
// endpoints; response payloads are the pipeline and knowledge domain
// types serialized inside the unified handler envelope.
//
// # API Overview
//
// Concierge provides a RESTful API for:
//   - Knowledge queries with language detection, clarification and
//     A/B-routed vector retrieval
//   - Conversation memory promotion to durable storage
//   - A/B experiment statistics and audit trail inspection
//   - Health monitoring and metrics
//
// # Authentication
//
// When JWT auth is enabled, protected endpoints require a bearer token:
//
//	Authorization: Bearer <token>
//
// Health and metrics endpoints are always unauthenticated.
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// # Generating Documentation
//
// Handler annotations follow the swag format; regenerate with:
//
//	swag init -g cmd/concierge/main.go -o api --parseDependency --parseInternal
package api
