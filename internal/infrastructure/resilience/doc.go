/*
Package resilience provides a circuit breaker for outbound calls.

The preview service only talks to the network when a library manifest points
at a remote asset (a CDN URL). Those fetches go through a Breaker so that an
unreachable mirror fails fast instead of stalling every registry load.

	breaker := resilience.New("cdn", resilience.AssetFetchSettings())
	body, err := resilience.Call(breaker, func() ([]byte, error) {
		return fetch(ctx, url)
	})

States:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                         Open
*/
package resilience
