// Package notify sends account lifecycle emails.
//
// Notifier is the contract used by the account service. SendGridNotifier
// delivers through the SendGrid v3 API, LogNotifier only logs (dev), and
// Dispatcher moves delivery off the request path onto a bounded queue.
package notify
