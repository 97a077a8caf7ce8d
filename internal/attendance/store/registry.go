package store

import (
	"sort"
	"sync"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
)

type listener[F any] struct {
	id       uint64
	onChange F
	onError  ErrorListener
}

// registry tracks listeners per date. It has its own lock so that a
// listener may unsubscribe while a delivery is running.
type registry[F any] struct {
	mu     sync.Mutex
	nextID uint64
	byDate map[domain.Date]map[uint64]listener[F]
}

func newRegistry[F any]() *registry[F] {
	return &registry[F]{byDate: make(map[domain.Date]map[uint64]listener[F])}
}

func (r *registry[F]) add(date domain.Date, onChange F, onError ErrorListener) listener[F] {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	l := listener[F]{id: r.nextID, onChange: onChange, onError: onError}
	if r.byDate[date] == nil {
		r.byDate[date] = make(map[uint64]listener[F])
	}
	r.byDate[date][l.id] = l
	return l
}

func (r *registry[F]) remove(date domain.Date, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byDate[date], id)
	if len(r.byDate[date]) == 0 {
		delete(r.byDate, date)
	}
}

// unsubscriber wraps remove in a sync.Once
func (r *registry[F]) unsubscriber(date domain.Date, id uint64) Unsubscribe {
	var once sync.Once
	return func() {
		once.Do(func() { r.remove(date, id) })
	}
}

// listeners returns a copy of the current listeners of date in subscription order
func (r *registry[F]) listeners(date domain.Date) []listener[F] {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]listener[F], 0, len(r.byDate[date]))
	for _, l := range r.byDate[date] {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// has reports whether listener id is still registered for date
func (r *registry[F]) has(date domain.Date, id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byDate[date][id]
	return ok
}

func (r *registry[F]) count(date domain.Date) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byDate[date])
}

func (r *registry[F]) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, ls := range r.byDate {
		n += len(ls)
	}
	return n
}

func (r *registry[F]) fail(date domain.Date, err error) {
	for _, l := range r.listeners(date) {
		if l.onError != nil && r.has(date, l.id) {
			l.onError(date, err)
		}
	}
}
