package chat

// Passage is one retrieved chunk, ranked by descending similarity.
type Passage struct {
	VectorID string
	Content  string
	Score    float64
}

// Response is the outcome of one chat turn.
type Response struct {
	Answer          string
	ContextChunkIDs []string
}
