// Package reminders is the scheduling engine: it turns chat messages into
// reminders, keeps per-chat ids dense, stages group submissions until they are
// confirmed, negotiates user timezones and fires due reminders.
//
// Persistence, delivery and date parsing are reached through the interfaces in
// types.go; internal/app wires the concrete implementations.
package reminders
