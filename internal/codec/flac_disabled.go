//go:build noflac

package codec

const flacBuilt = false

func decodeFLAC([]byte) ([]int16, error) {
	return nil, &CodecUnavailableError{Format: FLAC}
}

func encodeFLAC([]int16) ([]byte, error) {
	return nil, &CodecUnavailableError{Format: FLAC}
}
