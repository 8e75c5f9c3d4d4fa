package storage

// Page is a row of the pages table
type Page struct {
	ID         int64
	Title      string
	IsRedirect bool
}

// Adjacency is a row of the links table
type Adjacency struct {
	PageID        int64
	OutgoingCount int
	IncomingCount int
	Outgoing      []int64
	Incoming      []int64
}
