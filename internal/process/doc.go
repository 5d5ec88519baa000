// Package process spawns and supervises long-lived external processes.
//
// A Spawner launches commands under a shell with a PATH that prefers the
// host's managed runtime and package-manager binaries. Each spawn yields a
// Process that:
//   - Mirrors stdout and stderr to the output logger
//   - Feeds every decoded output chunk to an ordered list of matchers
//   - Writes handler replies back to the process stdin
//   - Terminates the whole process tree on Kill: a graceful request,
//     a liveness probe, then a forced kill after the hard timeout
//
// Matchers are addressed by the index returned at registration. Off
// disables a matcher in place, so indices stay valid for the life of the
// process.
//
// Example usage:
//
//	spawner := process.NewSpawner(&process.SpawnerOptions{
//	    ProjectRoot:   "/path/to/project",
//	    RuntimeBinary: "/opt/node/bin/node",
//	})
//	p, err := spawner.Spawn("preview", "npm run start", []string{"--port", "4000"}, nil)
//	if err != nil {
//	    return err
//	}
//	p.On(regexp.MustCompile(`(?i)continue\? \(y/n\)`), func(string) process.Reply {
//	    return process.Text("y\n")
//	})
//	ctx, cancel := context.WithTimeout(ctx, time.Minute)
//	defer cancel()
//	if _, err := p.WaitFor(ctx, regexp.MustCompile(`(?i)listening`), regexp.MustCompile(`(?i)error`)); err != nil {
//	    _ = p.Kill(context.Background())
//	    return err
//	}
package process
