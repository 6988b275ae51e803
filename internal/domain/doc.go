// Package domain provides the data structures shared by the local cache,
// the sync queue, and the remote backend client.
//
// Every record that exists both remotely and locally carries enough
// identity (id, and user_id where applicable) to be fully replaced on
// revalidation. Rows are never merged field-by-field: the remote backend
// is authoritative and the local copy is a revalidatable cache.
package domain
