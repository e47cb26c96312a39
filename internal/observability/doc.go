// Package observability provides the plansync event log, metrics derived
// from it, plan health alerts and alert notification. Events are stored as
// JSON Lines next to the plans they describe.
package observability
