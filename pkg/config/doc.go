/*
Package config loads the two kinds of YAML an operator authors: schedule
and period definitions, and the orchestrator daemon's own runtime
settings. Both follow the teacher's Config-struct-plus-Init pattern —
gopkg.in/yaml.v3 unmarshals into a plain struct, then a conversion step
validates and turns the wire shape into the types this module's core
packages already understand (types.Period, types.Schedule, Daemon).

LoadDocument/Periods/Schedules never touch the durable store; callers
(cmd/scheduler's `run` and `validate` subcommands) take the converted
records and either persist them through manager.Manager or just report
validation errors, depending on which subcommand is running. A bad
period or schedule definition in an otherwise valid file is collected as
an error alongside the successfully converted records rather than
aborting the whole load, so one operator typo doesn't take down every
other schedule in the file.
*/
package config
