package testutil

// FixedRunIDGenerator returns the same run ID every time, so the same
// scenario produces byte-identical stored runs and golden traces.
//
// Thread-safety: stateless and safe for concurrent use.
type FixedRunIDGenerator struct {
	id string
}

// DefaultRunID is used when no run ID is given.
const DefaultRunID = "test-run-default"

// NewFixedRunIDGenerator creates a generator for id. An empty id means
// DefaultRunID.
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = DefaultRunID
	}
	return &FixedRunIDGenerator{id: id}
}

// Generate returns the fixed run ID.
func (g *FixedRunIDGenerator) Generate() string {
	return g.id
}
