// Package supervisor runs named servers behind a start/stop/restart
// contract.
//
// A Supervisor pairs a port reservation with a Server implementation and
// moves through Idle, Starting, Running and Stopping. Overlapping calls
// collapse: a start while a start is in flight returns at once, a stop is
// a no-op unless the server is running, and a start on a running server
// stops it first. Start failures are logged and recorded in Status rather
// than returned.
//
// Two Server implementations are provided:
//   - ProcessServer spawns a command with the port in its environment or
//     arguments, answers prompts and waits for a ready pattern
//   - StaticServer serves a directory on the loopback interface
//
// A Registry owns the supervisors of one host and can reconcile them
// against a freshly loaded configuration.
package supervisor
