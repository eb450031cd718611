package model

// ID returns a pointer to v for use in optional reference fields.
func ID(v int64) *int64 {
	return &v
}

// IDValue dereferences an optional reference, returning 0 when unset.
func IDValue(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

// SameID reports whether two optional references point at the same id.
func SameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
