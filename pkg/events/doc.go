/*
Package events provides an in-memory event broker for scheduling-action
notifications.

Broker broadcasts Events — instance starts/stops/configures, schedule load
failures, maintenance-window transitions, role-assumption failures — to any
number of Subscribers over buffered channels. Publish never blocks on a slow
subscriber: a full subscriber buffer just drops that event rather than
stalling the runner loop publishing it. The orchestrator's Manager owns a
Broker and publishes to it; no component in this module subscribes by
default.
*/
package events
