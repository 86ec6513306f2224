package domain

import "fmt"

// ConcurrencyConflictError is raised by the record store when a write
// loses an optimistic-concurrency race. It carries the server's current
// version so detection can run immediately.
type ConcurrencyConflictError struct {
	ServerRecord *VersionedRecord
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on record %s", e.ServerRecord.ID)
}
