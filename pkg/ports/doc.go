/*
Package ports defines the driven ports (interfaces) for the Portalgate session cache.

These interfaces decouple the resolver from concrete storage, transport and login
implementations, so tests can run isolated instances with fake peers and fake clocks.

# Key Interfaces

  - SessionStore: Owns the token to Record mapping and its expiry policy.
  - HandleCodec: Rebuilds a Handle from the bytes a sibling instance sent.
  - PeerClient: Asks a single sibling instance for a token.
  - Authenticator: Logs into the portal and returns a fresh Handle.
  - DistributedLocker: Provides distributed locking for shared stores.
*/
package ports
