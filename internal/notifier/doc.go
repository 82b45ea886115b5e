// Package notifier delivers fired reminders to their chats.
//
// Sends are rate limited across all chats, bounded per call, attempted once,
// and de-duplicated: a reminder that was already delivered is not delivered
// again within the dedup window, even if the scan that fired it failed to
// delete it. Button cleanup is retried with jittered exponential backoff.
package notifier
