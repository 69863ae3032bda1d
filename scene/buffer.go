package scene

// A Buffer holds a geometry data array and remembers whether it was replaced
// or written to since the flag was last cleared. Builders use the flag to
// decide whether a hierarchy can be refitted instead of rebuilt.
type Buffer[T any] struct {
	items    []T
	modified bool
}

// Create a buffer that is initially flagged as modified.
func NewBuffer[T any](items []T) Buffer[T] {
	return Buffer[T]{items: items, modified: true}
}

// Replace the buffer contents.
func (b *Buffer[T]) Set(items []T) {
	b.items = items
	b.modified = true
}

// Overwrite a single item.
func (b *Buffer[T]) Update(i int, v T) {
	b.items[i] = v
	b.modified = true
}

// Get the buffer contents. Callers must not write to the returned slice;
// use Update or Set instead.
func (b *Buffer[T]) Items() []T {
	return b.items
}

func (b *Buffer[T]) At(i int) T {
	return b.items[i]
}

func (b *Buffer[T]) Len() int {
	return len(b.items)
}

func (b *Buffer[T]) IsModified() bool {
	return b.modified
}

func (b *Buffer[T]) ClearModified() {
	b.modified = false
}
