// Package domain implements the buddy safety check-in state machine.
//
// A session pairs an initiator with a buddy. It is created active and leaves
// that state through completion or an emergency; check-ins and missed
// check-in reports act on the side channel (last check-in time and the
// counterpart's inbox) without changing status. Every transition holds a
// per-session lock and commits its session write, counterpart notification
// and ledger grant as one unit of work; realtime publishing happens after
// the commit and only ever adds warnings.
package domain
