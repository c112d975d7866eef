// Package resolver maps a requested component name onto the design catalog.
// Exact case-insensitive names resolve outright; anything else becomes a
// ranked list of suggestions that an external actor has to confirm.
package resolver
