package confusion

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects how predictions are turned into hard labels.
type Mode int

const (
	// Binary scores a single positive class against the background.
	Binary Mode = iota
	// Multiclass assigns every pixel exactly one class (argmax).
	Multiclass
	// Multilabel scores every class channel independently.
	Multilabel
)

// ErrUnknownMode indicates a mode name that ParseMode does not recognize.
var ErrUnknownMode = errors.New("confusion: unknown mode")

func (m Mode) String() string {
	switch m {
	case Binary:
		return "binary"
	case Multiclass:
		return "multiclass"
	case Multilabel:
		return "multilabel"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Valid reports whether m is one of the defined modes.
func (m Mode) Valid() bool {
	return m >= Binary && m <= Multilabel
}

// ParseMode maps "binary", "multiclass" or "multilabel" (any case) to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "binary":
		return Binary, nil
	case "multiclass":
		return Multiclass, nil
	case "multilabel":
		return Multilabel, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// MarshalText encodes the mode by name.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText decodes a mode name.
func (m *Mode) UnmarshalText(text []byte) error {
	v, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Threshold labels every value strictly above t as 1 and the rest as 0.
func Threshold(values []float32, t float64) []int {
	out := make([]int, len(values))
	for i, v := range values {
		if float64(v) > t {
			out[i] = 1
		}
	}
	return out
}

// Positives labels every nonzero value as 1.
func Positives(values []float32) []int {
	out := make([]int, len(values))
	for i, v := range values {
		if v != 0 {
			out[i] = 1
		}
	}
	return out
}

// Argmax returns, for each pixel of channel-last data, the index of its
// largest channel. Ties resolve to the lowest index.
func Argmax(data []float32, channels int) ([]int, error) {
	if channels < 1 || len(data)%channels != 0 {
		return nil, fmt.Errorf("confusion: %d values do not split into %d channels", len(data), channels)
	}
	out := make([]int, len(data)/channels)
	for p := range out {
		px := data[p*channels : (p+1)*channels]
		best := 0
		for c := 1; c < channels; c++ {
			if px[c] > px[best] {
				best = c
			}
		}
		out[p] = best
	}
	return out, nil
}

// Binarize turns a channel-last prediction and its mask into hard labels.
//
// Multiclass takes the argmax of both and ignores t. Binary and Multilabel
// threshold the prediction element-wise at t and mark nonzero mask values
// as positive, keeping the channel-last layout.
func Binarize(mode Mode, pred, mask []float32, channels int, t float64) (maskLabels, predLabels []int, err error) {
	if len(pred) != len(mask) {
		return nil, nil, fmt.Errorf("%w: mask %d, prediction %d", ErrLengthMismatch, len(mask), len(pred))
	}

	switch mode {
	case Multiclass:
		if maskLabels, err = Argmax(mask, channels); err != nil {
			return nil, nil, err
		}
		if predLabels, err = Argmax(pred, channels); err != nil {
			return nil, nil, err
		}
		return maskLabels, predLabels, nil
	case Binary, Multilabel:
		return Positives(mask), Threshold(pred, t), nil
	}
	return nil, nil, fmt.Errorf("%w: %v", ErrUnknownMode, mode)
}
