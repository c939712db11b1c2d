package ballot

import "github.com/google/uuid"

// CorrelationIDProvider issues the random ids stamped on vote rows and
// receipts. The two ids of one submission come from independent draws.
type CorrelationIDProvider interface {
	NewCorrelationID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs a provider issuing random (version 4) UUIDs.
func NewUUIDProvider() CorrelationIDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewCorrelationID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
