// Package events is the live distribution core of beacon-server.
//
// Dispatcher[K, V] maps a subject key (a user id in production) to an
// EventSource[V]. Each EventSource keeps the last published value and the
// set of Outlets subscribed to it.
//
//	out, last, ok := d.Subscribe(userID) // last is valid when ok
//	d.Publish(userID, activities)        // delivered to out
//	v, ok := d.LastEvent(userID)
//
// Outlets are unbounded queues owned by the subscriber. Publish never waits
// on a reader. A reader that is done calls Outlet.Close; the next Publish
// on that key notices the failed delivery and drops the outlet in the same
// critical section. Dispatcher.Reap prunes closed outlets without waiting
// for a publish and is only run when server.reap_interval is set.
//
// Values published on one key reach each outlet in publish order. Nothing
// is guaranteed across keys.
package events
