package pipeline

import "github.com/google/uuid"

// newJobID mints a job identifier. Grounded on the rest of the pack's
// use of github.com/google/uuid for opaque resource IDs.
func newJobID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
