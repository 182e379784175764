package types

// ------------------------
// Capability addressing & kinds
// ------------------------

type Kind string

const (
	KindAirQuality Kind = "air_quality"
)

// Domain of the air-quality capability.
const DomainEnv = "env"
