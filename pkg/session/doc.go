/*
Package session serializes access to conversation sessions.

The Manager guarantees at most one concurrent step per (project, sender): a step
acquires the session's lock before loading it and releases it only after the updated
session is saved. Concurrent events for the same sender queue behind the lock in
arrival order; different senders never contend. With a DistributedLocker the same
guarantee holds across replicas.
*/
package session
