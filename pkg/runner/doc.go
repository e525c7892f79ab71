/*
Package runner turns inbound channel events into persisted session steps.

A Processor owns the per-event pipeline: the text is sanitized, the project's
active flow is resolved, the sender's session is locked and loaded, one executor
step runs against the graph version the session started on, the resulting
effects are handed to the outbound gateway and the session is saved before the
lock is released.

	p := runner.NewProcessor(flows, sessions, executor,
		runner.WithGateway(gateway),
		runner.WithLogger(logger),
	)

	res, err := p.Handle(ctx, domain.InboundEvent{ProjectID: "acme", SenderID: "5511999990000", Text: "hi"})

Redelivered events (same MessageID) are acknowledged without advancing the session.
*/
package runner
