// Package logging is the structured logger shared by the orchestrator, the
// polling manager, the persister and the HTTP server. Entries are JSON lines
// written by zerolog, each tagged with the component that produced it.
package logging
