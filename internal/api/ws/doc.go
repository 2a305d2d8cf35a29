// Package ws streams headless preview runs over WebSocket.
//
// Message Types (Client → Server):
//   - run: assemble {project, options} and execute it in the sandbox
//   - ping: keep-alive ping
//
// Message Types (Server → Client):
//   - system: connection greeting
//   - assembled: the document was built; carries its ETag
//   - message: one decoded message the page posted to its parent, sent
//     while the run is still going
//   - complete: the run finished; carries status, uncaught errors and
//     dropped message count
//   - error: the request could not be served
//   - pong
//
// Example Usage:
//
//	handler := ws.NewHandler(assembler, pool, metrics, logger)
//	router.GET("/stream", handler.HandleConnection)
package ws
