// Package rsvp implements the event and guest actor: the single owner of
// events, guests, their registrations and break periods for one location.
//
// Every operation runs on the actor's mailbox goroutine, one at a time, so
// the capacity check of a registration and the insertion it guards cannot
// interleave with another registration. Mutations are applied to a copy
// of the state and only swapped in once the snapshot has been saved, so a
// failed operation leaves no trace.
//
// One Actor serves one location tag such as "sps:nyc"; Registry hands out
// the actor for a tag. The Actor also implements the storage capability
// the event lifecycle workflow reads and writes through.
package rsvp
