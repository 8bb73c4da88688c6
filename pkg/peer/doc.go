/*
Package peer implements the instance-to-instance exchange of session records.

  - Directory: the static, ordered list of sibling instances, minus ourselves.
  - Client: asks one sibling for a token over HTTP, with a hard per-query budget.
  - Responder: answers a sibling from the local store only.

The exchange is pull-only: a record created on one instance becomes visible on another
only when the latter asks for it.
*/
package peer
