// Package api exposes the duetboard REST surface: webhook endpoint
// management, delivery logs and statistics, manual event triggering, and
// session/message CRUD for the dashboard.
package api
