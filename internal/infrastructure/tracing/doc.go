/*
Package tracing provides lightweight request tracing.

Each HTTP request gets a span. A client may continue an existing trace by
sending X-Trace-ID (and optionally X-Span-ID as the parent); both are echoed
on the response. Finished spans are buffered and logged through zap by a
single collector goroutine, dropped with a warning when the buffer is full.

	tracer := tracing.New("preview", logger)
	defer tracer.Close()
	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "sandbox.run")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()
*/
package tracing
