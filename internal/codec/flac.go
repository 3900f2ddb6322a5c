//go:build !noflac

package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/ae-archive/vae/internal/errs"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

const flacBuilt = true

const (
	flacBlockSize = 4096
	// The stream carries generic integer samples; the rate is a placeholder.
	flacSampleRate = 44100
)

func decodeFLAC(blob []byte) ([]int16, error) {
	stream, err := flac.New(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("opening flac stream: %w", err)
	}
	defer stream.Close()

	if stream.Info.NChannels != 1 {
		return nil, fmt.Errorf("%w: flac stream has %d channels, want 1", errs.ErrConsistency, stream.Info.NChannels)
	}
	if stream.Info.BitsPerSample > 16 {
		return nil, fmt.Errorf("%w: flac stream has %d bits per sample, want <= 16", errs.ErrConsistency, stream.Info.BitsPerSample)
	}

	out := make([]int16, 0, stream.Info.NSamples)
	for {
		f, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding flac frame: %w", err)
		}
		for _, s := range f.Subframes[0].Samples {
			out = append(out, int16(s))
		}
	}
	return out, nil
}

func encodeFLAC(adc []int16) ([]byte, error) {
	var buf bytes.Buffer
	info := &meta.StreamInfo{
		BlockSizeMin:  flacBlockSize,
		BlockSizeMax:  flacBlockSize,
		SampleRate:    flacSampleRate,
		NChannels:     1,
		BitsPerSample: 16,
		NSamples:      uint64(len(adc)),
	}
	enc, err := flac.NewEncoder(&buf, info)
	if err != nil {
		return nil, fmt.Errorf("creating flac encoder: %w", err)
	}

	for start := 0; start < len(adc); start += flacBlockSize {
		end := min(start+flacBlockSize, len(adc))
		block := make([]int32, end-start)
		for i, s := range adc[start:end] {
			block[i] = int32(s)
		}
		f := &frame.Frame{
			Header: frame.Header{
				HasFixedBlockSize: true,
				BlockSize:         uint16(len(block)),
				SampleRate:        flacSampleRate,
				Channels:          frame.ChannelsMono,
				BitsPerSample:     16,
			},
			Subframes: []*frame.Subframe{subframe(block)},
		}
		if err := enc.WriteFrame(f); err != nil {
			return nil, fmt.Errorf("writing flac frame: %w", err)
		}
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing flac encoder: %w", err)
	}
	return buf.Bytes(), nil
}

// Rice1 partitions carry a 4-bit parameter; 15 is the escape code.
const maxRiceParam = 14

// subframe picks the fixed predictor with the smallest residual sum and
// Rice-codes its residuals in one partition. Blocks that would not shrink
// are stored verbatim.
func subframe(block []int32) *frame.Subframe {
	sub := &frame.Subframe{
		SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
		Samples:   block,
		NSamples:  len(block),
	}
	order, residuals := fixedOrder(block)
	param, bits := riceParam(residuals)
	// Warm-up samples, coding method, partition order and parameter.
	bits += uint64(16*order + 2 + 4 + 4)
	if bits >= uint64(16*len(block)) {
		return sub
	}
	sub.SubHeader = frame.SubHeader{
		Pred:                 frame.PredFixed,
		Order:                order,
		ResidualCodingMethod: frame.ResidualCodingMethodRice1,
		RiceSubframe: &frame.RiceSubframe{
			PartOrder:  0,
			Partitions: []frame.RicePartition{{Param: param}},
		},
	}
	return sub
}

func fixedOrder(block []int32) (int, []int32) {
	bestOrder, bestSum := 0, uint64(math.MaxUint64)
	var best []int32
	for order := 0; order < len(frame.FixedCoeffs) && order < len(block); order++ {
		res := fixedResiduals(block, order)
		var sum uint64
		for _, r := range res {
			sum += uint64(max(r, -r))
		}
		if sum < bestSum {
			bestOrder, bestSum, best = order, sum, res
		}
	}
	return bestOrder, best
}

func fixedResiduals(block []int32, order int) []int32 {
	coeffs := frame.FixedCoeffs[order]
	res := make([]int32, 0, len(block)-order)
	for i := order; i < len(block); i++ {
		var pred int64
		for j, c := range coeffs {
			pred += int64(c) * int64(block[i-j-1])
		}
		res = append(res, block[i]-int32(pred))
	}
	return res
}

// riceParam returns the Rice parameter with the fewest coded bits, and
// that bit count.
func riceParam(residuals []int32) (uint, uint64) {
	bestParam, bestBits := uint(0), uint64(math.MaxUint64)
	for k := uint(0); k <= maxRiceParam; k++ {
		var bits uint64
		for _, r := range residuals {
			folded := uint32(r<<1) ^ uint32(r>>31)
			bits += 1 + uint64(k) + uint64(folded>>k)
		}
		if bits < bestBits {
			bestParam, bestBits = k, bits
		}
	}
	return bestParam, bestBits
}
