// Package schedule provides cron expression handling and deferred execution.
//
// The cron functions parse and validate expressions and compute upcoming run
// times for scheduled announcements. RunAt executes a function
// asynchronously at a specified time unless its context is canceled first.
package schedule
