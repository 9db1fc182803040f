package utils

// SERVING_BATCH_SIZE bounds how many rows go into one scoring request.
const SERVING_BATCH_SIZE = 256

// Batches splits items into consecutive slices of at most size elements.
// The slices share the backing array of items. A size below 1 yields a
// single batch.
func Batches[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size < 1 || size >= len(items) {
		return [][]T{items}
	}

	batches := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end:end])
	}
	return batches
}
