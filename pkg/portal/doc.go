/*
Package portal provides the concrete handle wrapped by the session cache: an
authenticated HTTP client for the remote school portal.

A Client is created by Authenticator.Login and can be shipped to another instance
through Marshal and Codec.Unmarshal. The serialized form carries the portal
endpoint, the session cookies and the cached per-entity selections (such as the
currently selected grading period), so the receiving instance resumes without
repeating the login handshake.
*/
package portal
