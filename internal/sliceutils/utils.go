package sliceutils

// FlatMap maps every element to a slice and concatenates the results.
func FlatMap[T any, U any](input []T, mapper func(T) []U) []U {
	var output []U
	for _, v := range input {
		output = append(output, mapper(v)...)
	}
	return output
}

// FilterMap keeps the mapped value of every element for which mapper
// reports ok.
func FilterMap[T any, U any](input []T, mapper func(T) (U, bool)) []U {
	var output []U
	for _, v := range input {
		if mapped, ok := mapper(v); ok {
			output = append(output, mapped)
		}
	}
	return output
}

// AsObject reports whether a decoded JSON value is an object.
func AsObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}
