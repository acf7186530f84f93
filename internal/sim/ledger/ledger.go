package ledger

type ItemStack struct {
	Item  string
	Count int
}

// ItemSource is anything countable items can be drawn from: the owner's
// personal inventory, the relic's storage container, etc. The ledger depends
// only on Enumerate; Remove exists for the transaction manager's commit path.
type ItemSource interface {
	SourceID() string
	Enumerate() []ItemStack
	// Remove takes up to n of item from the source and reports how many were
	// actually removed.
	Remove(item string, n int) int
}

// SourceResolver yields the item sources for an owner in deduction order
// (personal inventory before relic storage).
type SourceResolver interface {
	Sources(ownerID string) []ItemSource
}

// Requirement asks for count items of a primary type, optionally satisfiable
// by the listed substitute types. Substitutes are in declaration order.
type Requirement struct {
	Item        string
	Substitutes []string
	Count       int
}

// Ledger answers read-only availability queries across an owner's sources.
type Ledger struct {
	resolver SourceResolver
}

func New(resolver SourceResolver) *Ledger {
	return &Ledger{resolver: resolver}
}

func (l *Ledger) Available(ownerID, item string) int {
	total := 0
	for _, src := range l.resolver.Sources(ownerID) {
		for _, st := range src.Enumerate() {
			if st.Item == item && st.Count > 0 {
				total += st.Count
			}
		}
	}
	return total
}

// SubstitutionCount sums availability across the requirement's primary and
// substitute types. perType always contains an entry for the primary and for
// every substitute, including zero counts.
func (l *Ledger) SubstitutionCount(ownerID string, req Requirement) (total int, perType map[string]int) {
	perType = map[string]int{}
	for _, item := range append([]string{req.Item}, req.Substitutes...) {
		if _, seen := perType[item]; seen {
			continue
		}
		n := l.Available(ownerID, item)
		perType[item] = n
		total += n
	}
	return total, perType
}

// FuncResolver adapts a plain function to SourceResolver.
type FuncResolver func(ownerID string) []ItemSource

func (f FuncResolver) Sources(ownerID string) []ItemSource { return f(ownerID) }

// MapSource is a map-backed ItemSource used by inventories and containers.
type MapSource struct {
	ID    string
	Items map[string]int
}

func NewMapSource(id string, items map[string]int) *MapSource {
	if items == nil {
		items = map[string]int{}
	}
	return &MapSource{ID: id, Items: items}
}

func (s *MapSource) SourceID() string { return s.ID }

func (s *MapSource) Enumerate() []ItemStack {
	out := make([]ItemStack, 0, len(s.Items))
	for item, c := range s.Items {
		if c <= 0 {
			continue
		}
		out = append(out, ItemStack{Item: item, Count: c})
	}
	return out
}

func (s *MapSource) Remove(item string, n int) int {
	if n <= 0 {
		return 0
	}
	have := s.Items[item]
	if have <= 0 {
		return 0
	}
	if n > have {
		n = have
	}
	have -= n
	if have == 0 {
		delete(s.Items, item)
	} else {
		s.Items[item] = have
	}
	return n
}
