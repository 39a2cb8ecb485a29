// Package sessions persists dual-agent (manager/worker) coding sessions and
// their message transcripts, and fires webhook events on lifecycle
// transitions. It is the event source for the webhook delivery engine; the
// engine itself knows nothing about session schema.
package sessions
