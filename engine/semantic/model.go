package semantic

// Hit is a single similarity search match.
type Hit struct {
	PointID  string            `json:"point_id"`
	Score    float32           `json:"score"`
	ItemID   int64             `json:"item_id"`
	SourceID int64             `json:"source_id"`
	Title    string            `json:"title"`
	URL      string            `json:"url"`
	Meta     map[string]string `json:"meta,omitempty"`
}

// Record is one content item vector to store in Qdrant.
type Record struct {
	PointID   string
	ItemID    int64
	SourceID  int64
	Title     string
	URL       string
	Embedding []float32
}
