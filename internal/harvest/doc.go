// Package harvest defines the domain model of the opinion harvesting
// pipeline: work units keyed by (court, docket date), case groups and their
// document fragments, the classification and ordering rules for assembling
// opinions, the retry/backoff policy, and the pacing primitives shared by the
// fetch engine and coordinator.
package harvest
