/*
Package server manages the lifecycle of the API and metrics listeners.

A Manager wraps net/http.Server with a non-blocking Start (or StartTLS with
the tlsutil defaults), an error channel for listener failures and a
graceful Shutdown bounded by Config.ShutdownTimeout. Wait ties the two
together for the serve command:

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := m.Start(); err != nil {
		return err
	}
	return m.Wait(ctx)
*/
package server
