package paging

// Kind tells how a page is backed.
type Kind int

// The kinds of pages.
const (
	KindUninit Kind = iota
	KindAnon
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindUninit:
		return "uninit"
	case KindAnon:
		return "anon"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}
