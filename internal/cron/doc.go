// Package cron parses 5-field cron expressions and answers when an
// expression last fired at or before a reference instant.
//
//	┌───────────── minute (0-59)
//	│ ┌───────────── hour (0-23)
//	│ │ ┌───────────── day of month (1-31, ? allowed)
//	│ │ │ ┌───────────── month (1-12 or jan-dec)
//	│ │ │ │ ┌───────────── day of week (0-6 or sun-sat, 7 = Sunday, ? allowed)
//	│ │ │ │ │
//	* * * * *
//
// Each comma-separated segment is one of: *, a value or name, a range
// (1-5), or either of those with a step suffix (*/15, 1-30/5, /10).
//
// Matching follows the usual crontab convention for the two day fields:
// when both day-of-month and day-of-week are restricted a date matches if
// either one matches; otherwise the restricted field (if any) decides.
//
// All calendar fields are read in the location of the time being tested.
package cron
