// Package mail renders and delivers the meetup's email: the weekly
// invite broadcast, the morning-of reminder batch and address
// verification. Delivery goes through a Sender, either Amazon SES or a
// no-op that only logs.
package mail
