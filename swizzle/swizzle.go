// Package swizzle converts between BGRA and RGBA byte orders in place.
package swizzle

// BGRA swaps the first and third byte of every 4-byte pixel in p. It
// converts BGRA to RGBA and back. A trailing partial pixel is left alone.
func BGRA(p []byte) {
	n := len(p) &^ 3
	for i := 0; i < n; i += 4 {
		p[i], p[i+2] = p[i+2], p[i]
	}
}
