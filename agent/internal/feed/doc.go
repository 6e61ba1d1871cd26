// Package feed decodes the agent's presence feed: one JSON presence update
// per line, as produced by a gateway client.
//
//	{"user_id":"111","activities":[{"name":"Game","type":0}]}
//
// Lines that fail to decode, or that carry no user id, are logged and
// skipped so they never reach the server. Blank lines are ignored.
package feed
