/*
Package log provides structured logging for the scheduling daemon using
zerolog. All logs include timestamps; component loggers attach an
account/region/schedule/resource scope so a single instance's lifecycle can
be grep'd out of a multi-tenant run.

Init configures the global Logger once at startup from Config. Everything
else is cheap child-logger derivation: WithAccount, WithRegion, WithSchedule,
and WithResource each return a zerolog.Logger with the relevant fields
already attached, to be passed down into the orchestrator/runner call chain
rather than threaded as a separate parameter.
*/
package log
