// Package enrollment holds the student-side rules of pre-enrollment: the
// selection ledger shared by the three enrollment categories, the classification
// of enrollment periods, and the gate that turns a selection into a batch request.
package enrollment

import (
	"fmt"
	"sync"

	"github.com/noah-isme/preenroll-api/internal/models"
)

// Category is the enrollment type a selection is made under.
type Category = models.EnrollmentType

const (
	Normal  = models.EnrollmentTypeNormal
	Advance = models.EnrollmentTypeAdvance
	Retake  = models.EnrollmentTypeRetake
)

// MaxSubjects is the institutional cap on subjects per period across all categories.
const MaxSubjects = 8

// Outcome reports what a ledger mutation did.
type Outcome int

const (
	Rejected Outcome = iota
	Added
	Removed
	Replaced
	Cleared
)

func (o Outcome) String() string {
	switch o {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Replaced:
		return "replaced"
	case Cleared:
		return "cleared"
	default:
		return "rejected"
	}
}

// MaxReachedMessage is the notice emitted when a selection would exceed the cap.
func MaxReachedMessage(max int) string {
	return fmt.Sprintf("maximum of %d subjects in total", max)
}

// PartialSelectionMessage is the notice emitted when select-all is truncated by the cap.
func PartialSelectionMessage(selected, visible, max int) string {
	return fmt.Sprintf("only %d of %d subjects were selected because of the %d subject limit", selected, visible, max)
}

type orderedSet struct {
	ids   []int
	index map[int]struct{}
}

func newOrderedSet() *orderedSet {
	return &orderedSet{index: make(map[int]struct{})}
}

func (s *orderedSet) has(id int) bool {
	_, ok := s.index[id]
	return ok
}

func (s *orderedSet) add(id int) {
	if s.has(id) {
		return
	}
	s.index[id] = struct{}{}
	s.ids = append(s.ids, id)
}

func (s *orderedSet) remove(id int) {
	if !s.has(id) {
		return
	}
	delete(s.index, id)
	for i, v := range s.ids {
		if v == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			return
		}
	}
}

func (s *orderedSet) reset() {
	s.ids = nil
	s.index = make(map[int]struct{})
}

func (s *orderedSet) len() int {
	return len(s.ids)
}

func (s *orderedSet) list() []int {
	return append([]int(nil), s.ids...)
}

// Ledger tracks the subjects selected under each category and enforces the shared
// cap. An id is selected in at most one category, and the three sets together never
// exceed the cap. Selection order is preserved per category.
//
// Once a catalog is registered for a category, only ids in that catalog can be
// added under it. Categories without a catalog accept any id not offered elsewhere.
//
// While a submission holds the ledger, every mutation is refused.
type Ledger struct {
	mu       sync.Mutex
	held     bool
	max      int
	sets     map[Category]*orderedSet
	catalog  map[Category][]int
	owner    map[int]Category
	notifier Notifier
}

// LedgerOption customises a Ledger.
type LedgerOption func(*Ledger)

// WithMax overrides the subject cap.
func WithMax(max int) LedgerOption {
	return func(l *Ledger) {
		if max > 0 {
			l.max = max
		}
	}
}

// WithNotifier routes ledger notices to n.
func WithNotifier(n Notifier) LedgerOption {
	return func(l *Ledger) {
		if n != nil {
			l.notifier = n
		}
	}
}

// NewLedger returns an empty ledger capped at MaxSubjects unless overridden.
func NewLedger(opts ...LedgerOption) *Ledger {
	l := &Ledger{
		max:      MaxSubjects,
		sets:     make(map[Category]*orderedSet, len(models.EnrollmentTypes)),
		catalog:  make(map[Category][]int, len(models.EnrollmentTypes)),
		owner:    make(map[int]Category),
		notifier: discardNotifier{},
	}
	for _, cat := range models.EnrollmentTypes {
		l.sets[cat] = newOrderedSet()
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Max returns the subject cap.
func (l *Ledger) Max() int {
	return l.max
}

// SetCatalog registers the offerings visible under cat, in fetch order. A nil or
// empty list still registers the category, so nothing can be added under it.
// Selections already made are kept.
func (l *Ledger) SetCatalog(cat Category, ids []int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.sets[cat]; !ok {
		return
	}
	for _, id := range l.catalog[cat] {
		if l.owner[id] == cat {
			delete(l.owner, id)
		}
	}
	l.catalog[cat] = append([]int(nil), ids...)
	for _, id := range ids {
		l.owner[id] = cat
	}
}

// Toggle removes id from cat when present, otherwise tries to add it.
// Adding is rejected, with a notice, when the cap is reached or the id is not
// offered under cat.
func (l *Ledger) Toggle(cat Category, id int) Outcome {
	outcome, _ := l.toggle(cat, id)
	return outcome
}

func (l *Ledger) toggle(cat Category, id int) (Outcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return Rejected, ErrSubmissionInFlight
	}
	set, ok := l.sets[cat]
	if !ok {
		l.notify(LevelError, fmt.Sprintf("unknown enrollment type %q", cat))
		return Rejected, nil
	}
	if set.has(id) {
		set.remove(id)
		return Removed, nil
	}

	owner, owned := l.owner[id]
	if owned && owner != cat {
		l.notify(LevelWarning, fmt.Sprintf("subject %d is offered as %s, not %s", id, owner, cat))
		return Rejected, nil
	}
	if _, registered := l.catalog[cat]; registered && !owned {
		l.notify(LevelWarning, fmt.Sprintf("subject %d is not offered as %s", id, cat))
		return Rejected, nil
	}
	for other, otherSet := range l.sets {
		if other != cat && otherSet.has(id) {
			l.notify(LevelWarning, fmt.Sprintf("subject %d is already selected as %s", id, other))
			return Rejected, nil
		}
	}
	if l.totalLocked() >= l.max {
		l.notify(LevelWarning, MaxReachedMessage(l.max))
		return Rejected, nil
	}

	set.add(id)
	return Added, nil
}

// SelectAllNormal selects every visible NORMAL offering, or clears the NORMAL
// selection when all of them are already selected. When the remaining capacity is
// smaller than the offering list, only the first offerings in fetch order are taken.
func (l *Ledger) SelectAllNormal() Outcome {
	outcome, _ := l.selectAllNormal()
	return outcome
}

func (l *Ledger) selectAllNormal() (Outcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return Rejected, ErrSubmissionInFlight
	}

	normal := l.sets[Normal]
	visible := make([]int, 0, len(l.catalog[Normal]))
	for _, id := range l.catalog[Normal] {
		if !l.sets[Advance].has(id) && !l.sets[Retake].has(id) {
			visible = append(visible, id)
		}
	}

	if l.allSelectedLocked(visible) {
		normal.reset()
		return Cleared, nil
	}

	available := l.max - (l.sets[Advance].len() + l.sets[Retake].len())
	if available <= 0 {
		l.notify(LevelWarning, MaxReachedMessage(l.max))
		return Rejected, nil
	}

	take := visible
	if len(visible) > available {
		take = visible[:available]
		l.notify(LevelWarning, PartialSelectionMessage(available, len(visible), l.max))
	}
	normal.reset()
	for _, id := range take {
		normal.add(id)
	}
	return Replaced, nil
}

// Contains reports whether id is selected under cat.
func (l *Ledger) Contains(cat Category, id int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	set, ok := l.sets[cat]
	return ok && set.has(id)
}

// IDs returns the ids selected under cat in selection order.
func (l *Ledger) IDs(cat Category) []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if set, ok := l.sets[cat]; ok {
		return set.list()
	}
	return nil
}

// Count returns the number of ids selected under cat.
func (l *Ledger) Count(cat Category) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if set, ok := l.sets[cat]; ok {
		return set.len()
	}
	return 0
}

// Total returns the number of selected ids across categories.
func (l *Ledger) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalLocked()
}

// Remaining returns how many more subjects can be selected.
func (l *Ledger) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r := l.max - l.totalLocked(); r > 0 {
		return r
	}
	return 0
}

// IsMaxReached reports whether the cap has been reached.
func (l *Ledger) IsMaxReached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalLocked() >= l.max
}

// IsAllNormalSelected reports whether every visible NORMAL offering is selected.
func (l *Ledger) IsAllNormalSelected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allSelectedLocked(l.catalog[Normal])
}

// Reset clears every selection. Registered catalogs are kept.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, set := range l.sets {
		set.reset()
	}
}

// hold snapshots the selection and refuses mutations until release.
func (l *Ledger) hold() (Selection, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return Selection{}, ErrSubmissionInFlight
	}
	l.held = true
	return l.snapshotLocked(), nil
}

// release lifts a hold, clearing the selection first when clear is set.
func (l *Ledger) release(clear bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if clear {
		for _, set := range l.sets {
			set.reset()
		}
	}
	l.held = false
}

// Selection is a point-in-time copy of the ledger contents.
type Selection struct {
	Normal  []int
	Advance []int
	Retake  []int
}

// Total returns the number of ids in the selection.
func (s Selection) Total() int {
	return len(s.Normal) + len(s.Advance) + len(s.Retake)
}

// Snapshot copies the current selection atomically.
func (l *Ledger) Snapshot() Selection {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() Selection {
	return Selection{
		Normal:  l.sets[Normal].list(),
		Advance: l.sets[Advance].list(),
		Retake:  l.sets[Retake].list(),
	}
}

func (l *Ledger) totalLocked() int {
	total := 0
	for _, set := range l.sets {
		total += set.len()
	}
	return total
}

func (l *Ledger) allSelectedLocked(visible []int) bool {
	normal := l.sets[Normal]
	if len(visible) == 0 || normal.len() != len(visible) {
		return false
	}
	for _, id := range visible {
		if !normal.has(id) {
			return false
		}
	}
	return true
}

func (l *Ledger) notify(level Level, message string) {
	l.notifier.Notify(Notice{Level: level, Message: message})
}
