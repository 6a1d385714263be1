// Package types defines the public data model and typed error surface shared
// by every layer: regions and their wire codes, write reports, key-value
// entries, file metadata, and the status payloads exposed at the boundary.
//
// Errors carry a stable ErrKind so callers branch on intent rather than
// message text; the exported sentinels compose with errors.Is even when
// wrapped with an underlying cause.
package types
