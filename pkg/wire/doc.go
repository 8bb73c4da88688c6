/*
Package wire defines the serialized form of a session Record.

Only the handle bytes and the last interaction time cross a process boundary.
The token is always carried separately as the lookup key, and the peer directory
is never part of a record.
*/
package wire
