// Package ctcompare implements byte equality with data-independent timing.
package ctcompare

// Equal reports whether a and b hold the same bytes.
//
// The length check may return early: digest lengths are fixed and public per
// algorithm, so the branch carries no secret-dependent information. For
// equal-length inputs every byte pair is XORed into a single accumulator and
// the accumulator is inspected exactly once after the full scan, so the
// operation count never depends on where the inputs first differ.
func Equal(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	acc, _ := fold(a, b)
	return acc == 0
}

// fold accumulates the XOR of every byte pair and reports how many pairs it
// visited. The count is always the full length; it exists so tests can pin
// the scan shape of the exact loop Equal runs.
func fold(a, b []byte) (acc byte, visited int) {
	for i := range a {
		acc |= a[i] ^ b[i]
		visited++
	}
	return acc, visited
}
