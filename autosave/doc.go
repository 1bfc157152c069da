// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package autosave debounces draft saves.

	s := autosave.New(client, payload, autosave.WithDelay(2*time.Second))
	s.Arm()          // after each edit
	s.Flush(ctx)     // on exit
	s.Stop()

Each Arm restarts the delay. When the timer fires the payload is read and
sent unless it encodes to the same JSON as the last payload sent. Failures
go to the Notifier as MsgSaveFailed and are not retried; the next edit
schedules another attempt.
*/
package autosave
