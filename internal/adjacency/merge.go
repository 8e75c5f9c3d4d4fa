package adjacency

import "github.com/alvmarrod/link-weaver/internal/record"

// Merger merge-joins an outgoing and an incoming Stream, both sorted
// ascending by page ID, into one Adjacency per distinct page. Only the head
// of each stream is held in memory. Input order is trusted and not verified.
type Merger struct {
	out, in     Stream
	outHead     record.Group
	inHead      record.Group
	outOK, inOK bool
	started     bool
	current     record.Adjacency
	err         error
}

// NewMerger creates a Merger over the two sorted streams
func NewMerger(outgoing, incoming Stream) *Merger {
	return &Merger{out: outgoing, in: incoming}
}

func (m *Merger) advanceOut() {
	m.outOK = m.out.Next()
	if m.outOK {
		m.outHead = m.out.Group()
	} else if err := m.out.Err(); err != nil && m.err == nil {
		m.err = err
	}
}

func (m *Merger) advanceIn() {
	m.inOK = m.in.Next()
	if m.inOK {
		m.inHead = m.in.Group()
	} else if err := m.in.Err(); err != nil && m.err == nil {
		m.err = err
	}
}

// Next advances to the next page
func (m *Merger) Next() bool {
	if !m.started {
		m.started = true
		m.advanceOut()
		m.advanceIn()
	}
	if m.err != nil {
		return false
	}

	switch {
	case !m.outOK && !m.inOK:
		return false
	case m.outOK && (!m.inOK || m.outHead.PageID < m.inHead.PageID):
		m.current = combine(m.outHead.PageID, m.outHead.IDs, nil)
		m.advanceOut()
	case m.inOK && (!m.outOK || m.inHead.PageID < m.outHead.PageID):
		m.current = combine(m.inHead.PageID, nil, m.inHead.IDs)
		m.advanceIn()
	default:
		m.current = combine(m.outHead.PageID, m.outHead.IDs, m.inHead.IDs)
		m.advanceOut()
		m.advanceIn()
	}
	return true
}

func combine(pageID int64, outgoing, incoming []int64) record.Adjacency {
	return record.Adjacency{
		PageID:        pageID,
		Outgoing:      outgoing,
		Incoming:      incoming,
		OutgoingCount: len(outgoing),
		IncomingCount: len(incoming),
	}
}

// Adjacency returns the current merged record
func (m *Merger) Adjacency() record.Adjacency {
	return m.current
}

// Err returns the first error of either input stream
func (m *Merger) Err() error {
	return m.err
}
