/*
Package storage provides bbolt-backed persistence for the scheduling
engine's durable state: the resource registry, the schedule/period
definitions, and the maintenance-window mirror.

All three entity families are addressed through the Store interface and
share one database file. Each entity family lives in its own bucket with a
composite string key:

	registry   account|resource#region#service#resourceType#resourceID
	schedules  schedule name
	periods    period name
	mw_mirror  account-region|name:windowID
	ca         single "root" key holding the orchestrator's CA material

The registry's key scheme puts the account first so a full account scan is
a bucket prefix scan, and the region/service immediately after so a single
scheduling target's instances are also a contiguous prefix scan — the two
access patterns SPEC_FULL.md §9 requires an implementation preserve.

Every value is stored as JSON. Reads go through db.View, writes through
db.Update; there is no secondary indexing, so name/host-style lookups
(e.g. maintenance windows by display name) are done by the caller scanning
the already-loaded list rather than by a dedicated bucket.
*/
package storage
