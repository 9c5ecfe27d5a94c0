// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

// Package models defines the canonical data types shared across Logflux:
//
//   - Record: one request/response exchange recovered from a log frame.
//     This is the single canonical schema; frames on disk carry camelCase
//     keys and are converted at the parser edge, while every API boundary
//     emits snake_case.
//   - Filter: the conjunction of equality constraints used by queries and
//     live subscriptions.
//   - QueryPlan: which storage tiers a query consults.
//   - APIResponse and friends: standardized HTTP envelopes.
//   - Message / StatsSnapshot: WebSocket wire types.
//
// Types here carry no behavior beyond validation and predicate evaluation,
// so every other package can depend on models without import cycles.
package models
