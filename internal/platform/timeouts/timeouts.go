// Package timeouts defines shared timeout constants used across services.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing a gRPC peer.
const GRPCDial = 2 * time.Second

// Shutdown limits how long a server waits for in-flight work during
// graceful shutdown.
const Shutdown = 5 * time.Second

// LockLease bounds how long a distributed session lock is held before it
// expires on its own.
const LockLease = 10 * time.Second

// LockWait caps how long a transition waits to acquire a session lock.
const LockWait = 3 * time.Second

// Publish caps one realtime notification publish.
const Publish = 2 * time.Second
