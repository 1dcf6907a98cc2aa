package demux

var mutations = []byte{'A', 'C', 'G', 'T', 'N'}

// neighbourhood returns every sequence over {A,C,G,T,N} within the given
// Hamming distance of input, mapped to its distance from input.
// Each round of the breadth-first walk adds one substitution.
func neighbourhood(input string, distance int) map[string]int {
	seen := map[string]int{input: 0}
	toCheck := []string{input}

	for d := 1; d <= distance; d++ {
		nextCheck := make([]string, 0, len(toCheck)*len(input)*(len(mutations)-1))
		for _, cur := range toCheck {
			for i := 0; i < len(cur); i++ {
				if cur[i] != input[i] {
					// only substitute positions still equal to input,
					// otherwise d would overcount
					continue
				}
				for _, replacement := range mutations {
					if replacement == cur[i] {
						continue
					}
					variant := cur[:i] + string(replacement) + cur[i+1:]
					if _, already := seen[variant]; !already {
						seen[variant] = d
						nextCheck = append(nextCheck, variant)
					}
				}
			}
		}
		toCheck = nextCheck
	}
	return seen
}

// mismatches lists all sequences within distance of input.
func mismatches(input string, distance int) (out []string) {
	for variant := range neighbourhood(input, distance) {
		out = append(out, variant)
	}
	return out
}

// hamming counts differing positions of a against b, giving up once limit
// is passed. Both must have the same length. 'N' never matches.
func hamming(a []byte, b string, limit int) int {
	d := 0
	for i := 0; i < len(b); i++ {
		c := a[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c != b[i] || c == 'N' {
			d++
			if d > limit {
				return d
			}
		}
	}
	return d
}
