// Package process runs short-lived child processes such as audio players.
//
// Each process is started in its own process group so Stop can signal the
// player and anything it spawned (decoders, resamplers). Stop sends SIGTERM
// to the group, waits for GracefulTimeout, then sends SIGKILL.
//
// Output on stdout/stderr is forwarded to the logger at debug level.
//
// Example usage:
//
//	p, err := process.Start(process.Config{
//	    Name:   "aplay",
//	    Binary: "/usr/bin/aplay",
//	    Args:   []string{"-q", "scream.wav"},
//	})
//	if err != nil {
//	    return err
//	}
//	defer p.Stop()
//	err = p.Wait(ctx)
package process
