// Package bytescan provides exact substring search over byte buffers.
package bytescan

// Index returns the offset of the first occurrence of needle in haystack at or
// after start, or -1 if there is none. It uses a Horspool skip table built from
// the last occurrence of each byte value in needle, so it never misses a match
// but makes no guarantees on adversarial inputs.
func Index(haystack, needle []byte, start int) int {
	if start < 0 {
		start = 0
	}
	n, m := len(haystack), len(needle)
	if m == 0 {
		if start > n {
			return n
		}
		return start
	}
	if n-start < m {
		return -1
	}

	var skip [256]int
	for i := range skip {
		skip[i] = m
	}
	for i := 0; i < m-1; i++ {
		skip[needle[i]] = m - 1 - i
	}

	last := m - 1
	for pos := start; pos <= n-m; {
		j := last
		for j >= 0 && haystack[pos+j] == needle[j] {
			j--
		}
		if j < 0 {
			return pos
		}
		pos += skip[haystack[pos+last]]
	}
	return -1
}

// Contains reports whether needle occurs anywhere in haystack.
func Contains(haystack, needle []byte) bool {
	return Index(haystack, needle, 0) >= 0
}
