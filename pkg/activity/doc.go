// Package activity defines the value beacon distributes for each user: the
// list of activities shown in their presence, normalized for display.
//
// FromPresence turns a decoded gateway presence into []Activity, resolving
// asset references (spotify:, twitch:, mp:external/, application assets) to
// fetchable image URLs. Equal compares two lists for consumer-side
// de-duplication.
package activity
