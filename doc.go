/*
Package chatflow validates and runs directed-graph chat flows driven by channel messages.

A flow is a graph of typed nodes (start, message, buttons, keywordMatch, apiCall,
askaQuestion, end) joined by edges. Activation is the only gate to live traffic:
a graph is validated as a whole, every diagnostic is reported, and only a valid
graph is published as an immutable version. Each inbound message then advances
the sender's session by one step against the version the session started on.

# Usage

	eng := chatflow.New(
		chatflow.WithGateway(whatsapp.NewGateway(channels)),
		chatflow.WithInvoker(httpcall.New()),
	)

	res, err := eng.Activate(ctx, "acme", graph)
	if err != nil {
		for _, msg := range res.Errors {
			fmt.Println(msg)
		}
		return err
	}

	_, err = eng.Handle(ctx, domain.InboundEvent{
		ProjectID: "acme",
		SenderID:  "5511999990000",
		Text:      "hi",
	})

# Concurrency

Events for different senders run in parallel. Events for the same sender are
serialized by a per-session lock, in arrival order, and redelivered events are
recognized by their channel message id. A distributed lock (WithLocker) extends
the guarantee across instances sharing a session store.
*/
package chatflow
