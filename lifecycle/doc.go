// Package lifecycle drives one weekly event from creation to close.
//
// The event-management workflow is keyed by the event's scheduled start.
// It creates the event, sleeps until Wednesday noon to send invites,
// sleeps until Saturday 07:00 to remind the guests who are going, opens
// the door at 09:00 and closes everything at 12:00. Every phase re-reads
// the event, so an event canceled in the meantime turns the remaining
// phases into no-ops while the run still walks its sleeps to completion.
//
// A cron entry built by WeeklyTrigger starts one run per week.
package lifecycle
