// Package reminder implements the reminder scheduling and lifecycle engine:
// the data model for one-shot and recurring reminders, the per-reminder
// wait-and-fire tasks, the recurrence advance, and the JSON-file persistence
// that keeps the in-memory schedule consistent across restarts.
//
// Delivery and command parsing live outside this package; the engine only
// needs a Notifier to hand the rendered text to.
package reminder
