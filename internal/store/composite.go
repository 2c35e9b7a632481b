package store

// Composite joins independently opened vector and graph backends into
// a single FactStore. Used when the vector index lives in a dedicated
// store (chromem) while entities and relationships stay relational.
type Composite struct {
	VectorStore
	GraphStore

	closers []func() error
}

// NewComposite builds a composite fact store. The closers run in order
// on Close; pass each backend's Close.
func NewComposite(vectors VectorStore, graph GraphStore, closers ...func() error) *Composite {
	return &Composite{VectorStore: vectors, GraphStore: graph, closers: closers}
}

// Close closes every backend, returning the first error encountered.
func (c *Composite) Close() error {
	var first error
	for _, close := range c.closers {
		if err := close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
