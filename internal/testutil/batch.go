package testutil

// FixedBatchGenerator returns the same migration batch id every time.
//
// This makes the migrations table byte-identical across test runs, so
// status output can be compared against golden files.
//
// Thread-safety: FixedBatchGenerator is stateless and safe for concurrent use.
type FixedBatchGenerator struct {
	id string
}

// NewFixedBatchGenerator creates a fixed batch id generator.
// If id is empty, Generate() returns "test-batch-default".
func NewFixedBatchGenerator(id string) *FixedBatchGenerator {
	if id == "" {
		id = "test-batch-default"
	}
	return &FixedBatchGenerator{id: id}
}

// Generate returns the fixed batch id.
func (g *FixedBatchGenerator) Generate() string {
	return g.id
}
