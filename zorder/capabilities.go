package zorder

// Codec converts between coordinate tuples, unsigned interleaved keys and the
// literal form stored in index keys. Implementations are total on well-formed
// input and return an error on malformed input.
type Codec interface {
	NumDimensions() int

	// TotalBits is the number of significant interleaved bits,
	// NumDimensions times the bits per dimension.
	TotalBits() int

	// KeyLength is the byte length of an unpadded unsigned interleaved key.
	KeyLength() int

	// UnpadLeadingZero strips the leading zero byte of a padded key and
	// returns unpadded keys unchanged.
	UnpadLeadingZero(b []byte) []byte

	ToInterleaved(coords []uint64) ([]byte, error)
	FromInterleaved(b []byte) ([]uint64, error)

	// LiteralFromInterleaved converts an unsigned interleaved key into the
	// order-preserving literal stored in index keys.
	LiteralFromInterleaved(b []byte) []byte
	InterleavedFromLiteral(lit []byte) ([]byte, error)
}

// KeyCodec splits index keys into the components preceding the z-order
// literal and the literal itself, and assembles seek keys from them.
// AppendKey(nil, prefix, lit) must sort before every stored key that starts
// with the same prefix and literal.
type KeyCodec interface {
	SplitKey(key []byte) (prefix, literal []byte, err error)
	AppendKey(dst, prefix, literal []byte) []byte
}
