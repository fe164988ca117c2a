package paging

import (
	"sort"
	"sync"

	"github.com/sarchlab/vmkit/mem/vm"
)

// An SPT is the supplemental page table of one process. Pages live in an
// arena and are found through an index from page address to page ID.
//
// The lock protects the arena and the index only. Pages are destroyed after
// they leave the table, with the lock released.
type SPT struct {
	sync.RWMutex
	pages []*Page
	free  []PageID
	index map[uint64]PageID
}

// NewSPT creates an empty table.
func NewSPT() *SPT {
	return &SPT{
		index: make(map[uint64]PageID),
	}
}

// Find returns the page containing addr.
func (s *SPT) Find(addr uint64) (*Page, bool) {
	s.RLock()
	defer s.RUnlock()

	id, found := s.index[vm.PageRoundDown(addr)]
	if !found {
		return nil, false
	}

	return s.pages[id], true
}

// Insert adds p to the table. It fails if a page already occupies the
// address.
func (s *SPT) Insert(p *Page) bool {
	s.Lock()
	defer s.Unlock()

	if _, found := s.index[p.vaddr]; found {
		return false
	}

	if n := len(s.free); n > 0 {
		p.id = s.free[n-1]
		s.free = s.free[:n-1]
		s.pages[p.id] = p
	} else {
		p.id = PageID(len(s.pages))
		s.pages = append(s.pages, p)
	}

	s.index[p.vaddr] = p.id

	return true
}

// Remove takes p out of the table and destroys it. It reports false if p is
// not in the table. The page leaves the table even when destroying it fails,
// and the error of the failed write-back is returned.
func (s *SPT) Remove(p *Page) (bool, error) {
	if !s.take(p) {
		return false, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return true, p.destroy()
}

func (s *SPT) take(p *Page) bool {
	s.Lock()
	defer s.Unlock()

	id, found := s.index[p.vaddr]
	if !found || s.pages[id] != p {
		return false
	}

	delete(s.index, p.vaddr)
	s.pages[id] = nil
	s.free = append(s.free, id)

	return true
}

// Len returns the number of pages in the table.
func (s *SPT) Len() int {
	s.RLock()
	defer s.RUnlock()

	return len(s.index)
}

// Pages lists the pages in ascending address order.
func (s *SPT) Pages() []*Page {
	s.RLock()
	pages := make([]*Page, 0, len(s.index))
	for _, id := range s.index {
		pages = append(pages, s.pages[id])
	}
	s.RUnlock()

	sort.Slice(pages, func(i, j int) bool {
		return pages[i].vaddr < pages[j].vaddr
	})

	return pages
}

// DestroyAll removes and destroys every page. Destruction goes on after a
// failure and the first error is returned.
func (s *SPT) DestroyAll() error {
	s.Lock()
	pages := make([]*Page, 0, len(s.index))
	for _, id := range s.index {
		pages = append(pages, s.pages[id])
	}
	s.pages = nil
	s.free = nil
	s.index = make(map[uint64]PageID)
	s.Unlock()

	sort.Slice(pages, func(i, j int) bool {
		return pages[i].vaddr < pages[j].vaddr
	})

	var firstErr error
	for _, p := range pages {
		p.mu.Lock()
		err := p.destroy()
		p.mu.Unlock()

		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
