package types

import (
	"time"

	"github.com/google/uuid"
)

// NewJobID generates a UUIDv7 job identifier.
// Time-ordered IDs keep log output and job listings roughly chronological.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewJobID() JobID {
	return JobID(uuid.Must(uuid.NewV7()).String())
}

// ParseJobID checks that s is a UUID and returns it as a JobID.
func ParseJobID(s string) (JobID, error) {
	_, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return JobID(s), nil
}

// JobIDTime returns the millisecond timestamp embedded in a UUIDv7 job id,
// or the zero time when id is not a UUID.
func JobIDTime(id JobID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
