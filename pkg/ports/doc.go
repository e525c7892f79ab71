/*
Package ports defines the driven ports (interfaces) of the Chatflow runtime.

These interfaces decouple flow execution from storage, transport and delivery, so the
same processor runs against in-memory, file, Redis or SQLite backends.

# Key Interfaces

  - SessionStore: persists one Session per (project, sender).
  - DistributedLocker: coordinates per-session access across replicas.
  - FlowRepository: stores drafts and immutable published graph versions.
  - ChannelDirectory: maps channel addresses to projects and credentials.
  - OutboundGateway: delivers text and interactive messages to senders.
  - ExternalInvoker: performs apiCall requests.
*/
package ports
