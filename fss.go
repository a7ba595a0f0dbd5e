package fiber

// FSS is a fiber-specific-storage slot, the Go analogue of
// boost::fibers::fiber_specific_ptr<T> (spec.md §4.9): each FSS[T] value
// acts as one TLS-like slot, holding an independent T per fiber that calls
// Set on it. A slot's cleanup function, if any, runs when the owning fiber
// terminates or when Set overwrites an existing value.
type FSS[T any] struct{}

// NewFSS allocates a new fiber-specific-storage slot.
func NewFSS[T any]() *FSS[T] { return &FSS[T]{} }

// Get returns the calling fiber's value for this slot, or the zero value
// and false if Set has not been called on it for the calling fiber.
func (k *FSS[T]) Get() (T, bool) {
	f := mustCurrentFiberContext()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fss == nil {
		var zero T
		return zero, false
	}
	e, ok := f.fss[k]
	if !ok {
		var zero T
		return zero, false
	}
	return e.value.(T), true
}

// Set stores v as the calling fiber's value for this slot. If a value was
// already set, cleanup for that previous value (if one was registered)
// runs synchronously before Set returns.
func (k *FSS[T]) Set(v T, cleanup func(T)) {
	f := mustCurrentFiberContext()
	var wrapped func(any)
	if cleanup != nil {
		wrapped = func(a any) { cleanup(a.(T)) }
	}

	f.mu.Lock()
	if f.fss == nil {
		f.fss = make(map[any]*fssEntry)
	}
	old := f.fss[k]
	f.fss[k] = &fssEntry{value: v, cleanup: wrapped}
	f.mu.Unlock()

	if old != nil && old.cleanup != nil {
		old.cleanup(old.value)
	}
}

// Reset clears the calling fiber's value for this slot, running its
// cleanup function synchronously if one was registered.
func (k *FSS[T]) Reset() {
	f := mustCurrentFiberContext()
	f.mu.Lock()
	e := f.fss[k]
	if e != nil {
		delete(f.fss, k)
	}
	f.mu.Unlock()
	if e != nil && e.cleanup != nil {
		e.cleanup(e.value)
	}
}
