/*
Package domain contains the core domain models of the Chatflow engine.

It defines the authored flow (Graph, Node, Edge), the per-sender runtime record (Session),
the inbound events delivered by a messaging channel and the outbound Effects produced by
one executor step. The package is free of I/O and persistence concerns.

# Key Entities

  - Graph: The authored directed graph of conversational nodes and edges, fingerprinted by Version.
  - Node: One conversational step (start, message, keywordMatch, buttons, apiCall, askaQuestion, end).
  - Edge: A directed transition between nodes, optionally labeled to select among outcomes.
  - Session: Position of one sender inside an active flow plus the captured variables.
  - Effect: An outbound action (send text, send buttons, external call, diagnostic).
*/
package domain
