// Package series applies create, update and delete operations to events and
// recurring series under an explicit provider.Scope.
package series

import (
	"time"

	"icalmcp/internal/provider"
)

// SelectScope maps the two caller signals onto a scope:
//
//	occurrence  future  scope
//	absent      any     WholeSeries
//	present     false   ThisOccurrence
//	present     true    ThisAndFuture
//
// For deletes, future is the delete_entire_series flag.
func SelectScope(occurrence *time.Time, future bool) provider.Scope {
	switch {
	case occurrence == nil || occurrence.IsZero():
		return provider.WholeSeries
	case future:
		return provider.ThisAndFuture
	default:
		return provider.ThisOccurrence
	}
}
