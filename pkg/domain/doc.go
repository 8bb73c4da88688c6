/*
Package domain contains the core domain models of the Portalgate session cache.

It defines the unit stored behind a token (Record), the uniform result of a lookup
(Outcome) and the description of sibling instances (Peer). This package is kept pure
and free of external dependencies like I/O or persistence, following Hexagonal
Architecture principles.

# Key Entities

  - Handle: The capability contract of an authenticated portal connection.
  - Record: A Handle paired with the time of its last successful lookup.
  - Outcome: One of Found, Expired or NotFound. Never an error.
  - Peer: A sibling instance (address, identity) queried on a local miss.
*/
package domain
