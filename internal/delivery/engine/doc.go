// Package engine drives one delivery run end to end. It locates the
// workspace documents, resolves the requested component (asking a
// Confirmer whenever the match is not exact), plans and sequences the work
// units, then emits and commits them one at a time while checkpointing
// progress so an interrupted run can resume where it stopped.
package engine
