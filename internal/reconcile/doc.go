// Package reconcile runs the periodic availability check that turns approved
// requests into completed ones.
//
// Each pass loads every approved request and asks Emby whether the title has
// arrived. A hit flips the request to completed and writes the owner's inbox
// notification in one transaction that only applies while the row is still
// approved. Lookup failures are logged and retried on the next tick. Passes never
// overlap.
package reconcile
