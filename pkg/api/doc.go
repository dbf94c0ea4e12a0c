// Package api exposes the portal HTTP surface: authentication endpoints,
// patient-facing resource routes and the admin blocklist API, all wired
// through the security pipeline with per-route gate lists.
//
// Handlers stay thin. Rate limiting, input inspection, credential checks and
// authorization all happen in pkg/middleware before a handler runs; handlers
// only implement the operation itself and write the response envelope.
package api
