/*
Package session implements token resolution across the local store and sibling instances.

The Manager is the only entry point the API layer needs: GenerateToken stores a fresh
handle after a login, Resolve turns a token back into a handle. On a local miss for an
end-user request, the Manager asks each configured peer in order and imports the first
record found. Requests coming from a peer never fan out again, which keeps instances
from querying each other in loops.
*/
package session
