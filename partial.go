package segmetrics

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
	"gonum.org/v1/gonum/mat"

	"github.com/jamesainslie/go-segmetrics/calibration"
	"github.com/jamesainslie/go-segmetrics/confusion"
)

// Partial is the unfinalized result of scanning one shard. It can be
// serialized, moved to another process and merged there with
// Evaluator.Merge.
type Partial struct {
	acc *accumulator
}

// First returns the dataset index of the shard's first sample.
func (p *Partial) First() int {
	return p.acc.first
}

// Samples returns the number of samples scanned.
func (p *Partial) Samples() int {
	return p.acc.samples
}

// DatasetLen returns the length of the dataset the shard was cut from.
func (p *Partial) DatasetLen() int {
	return p.acc.size
}

// Wire field numbers of a serialized Partial.
const (
	fieldVersion     protowire.Number = 1
	fieldMode        protowire.Number = 2
	fieldFirst       protowire.Number = 3
	fieldSamples     protowire.Number = 4
	fieldHeight      protowire.Number = 5
	fieldWidth       protowire.Number = 6
	fieldChannels    protowire.Number = 7
	fieldLabel       protowire.Number = 8
	fieldThresholds  protowire.Number = 9
	fieldOperating   protowire.Number = 10
	fieldEdges       protowire.Number = 11
	fieldWeights     protowire.Number = 12
	fieldFlags       protowire.Number = 13
	fieldScale       protowire.Number = 14
	fieldOneVsRest   protowire.Number = 15
	fieldJoint       protowire.Number = 16
	fieldPositives   protowire.Number = 17
	fieldCalibration protowire.Number = 18
	fieldPatch       protowire.Number = 19
	fieldSize        protowire.Number = 20
)

// Fields of the nested calibration and patch messages.
const (
	fieldCalSums      protowire.Number = 1
	fieldCalTrue      protowire.Number = 2
	fieldCalCounts    protowire.Number = 3
	fieldCalHistogram protowire.Number = 4

	fieldPatchID     protowire.Number = 1
	fieldPatchValues protowire.Number = 2
)

const (
	partialVersion = 2

	flagPatchMetrics = 1 << 0
	flagCalibration  = 1 << 1
)

// MarshalBinary encodes the partial in protobuf wire format.
func (p *Partial) MarshalBinary() ([]byte, error) {
	a := p.acc
	if a == nil {
		return nil, fmt.Errorf("%w: empty partial", ErrIncompatiblePartial)
	}

	var b []byte
	b = appendVarint(b, fieldVersion, partialVersion)
	b = appendVarint(b, fieldMode, uint64(a.mode))
	b = appendVarint(b, fieldFirst, uint64(a.first))
	b = appendVarint(b, fieldSamples, uint64(a.samples))
	b = appendVarint(b, fieldSize, uint64(a.size))
	b = appendVarint(b, fieldHeight, uint64(a.shape.Height))
	b = appendVarint(b, fieldWidth, uint64(a.shape.Width))
	b = appendVarint(b, fieldChannels, uint64(a.shape.Channels))
	for _, l := range a.labels {
		b = protowire.AppendTag(b, fieldLabel, protowire.BytesType)
		b = protowire.AppendString(b, l)
	}
	b = appendDoubles(b, fieldThresholds, a.thresholds)
	b = appendVarint(b, fieldOperating, uint64(a.operating))
	b = appendDoubles(b, fieldEdges, a.edges)
	b = appendDoubles(b, fieldWeights, a.weights)

	var flags uint64
	if a.patchMetrics {
		flags |= flagPatchMetrics
	}
	if a.withCalibration {
		flags |= flagCalibration
	}
	b = appendVarint(b, fieldFlags, flags)
	b = protowire.AppendTag(b, fieldScale, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(a.scale))

	quads := make([]float64, 0, a.classes()*len(a.thresholds)*4)
	for _, row := range a.oneVsRest {
		for _, q := range row {
			quads = append(quads, q.TP, q.FN, q.FP, q.TN)
		}
	}
	b = appendDoubles(b, fieldOneVsRest, quads)
	if a.joint != nil {
		b = appendDoubles(b, fieldJoint, a.joint.RawMatrix().Data)
	}
	b = appendDoubles(b, fieldPositives, a.positives)

	for _, acc := range a.calibration {
		var m []byte
		m = appendDoubles(m, fieldCalSums, acc.Sums)
		m = appendDoubles(m, fieldCalTrue, acc.True)
		m = appendDoubles(m, fieldCalCounts, acc.Counts)
		m = appendDoubles(m, fieldCalHistogram, acc.Histogram)
		b = protowire.AppendTag(b, fieldCalibration, protowire.BytesType)
		b = protowire.AppendBytes(b, m)
	}

	for _, row := range a.patches {
		var m []byte
		m = protowire.AppendTag(m, fieldPatchID, protowire.BytesType)
		m = protowire.AppendString(m, row.ID)
		m = appendDoubles(m, fieldPatchValues, row.Values())
		b = protowire.AppendTag(b, fieldPatch, protowire.BytesType)
		b = protowire.AppendBytes(b, m)
	}

	return b, nil
}

// UnmarshalBinary decodes a partial written by MarshalBinary.
func (p *Partial) UnmarshalBinary(data []byte) error {
	a := &accumulator{}
	var (
		version   uint64
		quads     []float64
		joint     []float64
		positives []float64
		cals      [][]byte
		patches   [][]byte
	)

	err := walkFields(data, func(num protowire.Number, v uint64, raw []byte) error {
		var err error
		switch num {
		case fieldVersion:
			version = v
		case fieldMode:
			a.mode = confusion.Mode(v)
		case fieldFirst:
			a.first, err = toInt("first sample", v)
		case fieldSamples:
			a.samples, err = toInt("sample count", v)
		case fieldHeight:
			a.shape.Height, err = toInt("height", v)
		case fieldWidth:
			a.shape.Width, err = toInt("width", v)
		case fieldChannels:
			a.shape.Channels, err = toInt("channel count", v)
		case fieldSize:
			a.size, err = toInt("dataset length", v)
		case fieldLabel:
			a.labels = append(a.labels, string(raw))
		case fieldThresholds:
			a.thresholds, err = parseDoubles(raw)
		case fieldOperating:
			a.operating, err = toInt("operating threshold", v)
		case fieldEdges:
			a.edges, err = parseDoubles(raw)
		case fieldWeights:
			a.weights, err = parseDoubles(raw)
		case fieldFlags:
			a.patchMetrics = v&flagPatchMetrics != 0
			a.withCalibration = v&flagCalibration != 0
		case fieldScale:
			a.scale = math.Float64frombits(v)
		case fieldOneVsRest:
			quads, err = parseDoubles(raw)
		case fieldJoint:
			joint, err = parseDoubles(raw)
		case fieldPositives:
			positives, err = parseDoubles(raw)
		case fieldCalibration:
			cals = append(cals, raw)
		case fieldPatch:
			patches = append(patches, raw)
		}
		return err
	})
	if err != nil {
		return err
	}

	if version != partialVersion {
		return fmt.Errorf("%w: format version %d", ErrIncompatiblePartial, version)
	}
	classes := a.shape.Channels
	switch {
	case !a.mode.Valid():
		return fmt.Errorf("%w: mode %d", ErrIncompatiblePartial, int(a.mode))
	case classes < 1 || a.shape.Height < 1 || a.shape.Width < 1:
		return fmt.Errorf("%w: shape %v", ErrIncompatiblePartial, a.shape)
	case a.mode == confusion.Binary && classes != 1:
		return fmt.Errorf("%w: binary scan of %d channels", ErrIncompatiblePartial, classes)
	case a.samples < 1 || a.first+a.samples > a.size:
		return fmt.Errorf("%w: %d samples from %d in a dataset of %d", ErrIncompatiblePartial, a.samples, a.first, a.size)
	case len(a.thresholds) == 0 || a.operating >= len(a.thresholds):
		return fmt.Errorf("%w: threshold set", ErrIncompatiblePartial)
	case calibration.Validate(a.edges) != nil:
		return fmt.Errorf("%w: calibration edges", ErrIncompatiblePartial)
	case a.mode == confusion.Binary && len(a.labels) != 2,
		a.mode != confusion.Binary && len(a.labels) != classes:
		return fmt.Errorf("%w: %d labels for %d channels", ErrIncompatiblePartial, len(a.labels), classes)
	}

	// Sizes are checked against the channel count before anything is
	// allocated from it.
	per := len(a.thresholds) * 4
	switch {
	case len(quads)%per != 0 || len(quads)/per != classes:
		return fmt.Errorf("%w: %d observation counts", ErrIncompatiblePartial, len(quads))
	case a.mode == confusion.Multiclass && len(joint) != classes*classes,
		a.mode != confusion.Multiclass && len(joint) != 0:
		return fmt.Errorf("%w: joint matrix of %d values", ErrIncompatiblePartial, len(joint))
	case len(positives) != classes:
		return fmt.Errorf("%w: %d positive counts", ErrIncompatiblePartial, len(positives))
	case a.withCalibration && len(cals) != classes,
		!a.withCalibration && len(cals) != 0:
		return fmt.Errorf("%w: %d calibration accumulators", ErrIncompatiblePartial, len(cals))
	case a.patchMetrics && len(patches) != a.samples,
		!a.patchMetrics && len(patches) != 0:
		return fmt.Errorf("%w: %d per-sample rows for %d samples", ErrIncompatiblePartial, len(patches), a.samples)
	}

	a.allocate()

	for c := range a.oneVsRest {
		for k := range a.oneVsRest[c] {
			q := quads[(c*len(a.thresholds)+k)*4:]
			a.oneVsRest[c][k] = confusion.Quadruple{TP: q[0], FN: q[1], FP: q[2], TN: q[3]}
		}
	}

	if a.joint != nil {
		a.joint = mat.NewDense(classes, classes, joint)
	}
	copy(a.positives, positives)

	for c, raw := range cals {
		if err := decodeCalibration(raw, a.calibration[c]); err != nil {
			return err
		}
	}

	for _, raw := range patches {
		row, err := decodePatch(raw, classes)
		if err != nil {
			return err
		}
		a.patches = append(a.patches, row)
	}

	a.state = stateScanning
	p.acc = a
	return nil
}

// toInt converts a decoded count or index, rejecting values no scan
// produces.
func toInt(name string, v uint64) (int, error) {
	if v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s %d out of range", ErrIncompatiblePartial, name, v)
	}
	return int(v), nil
}

func decodeCalibration(raw []byte, acc *calibration.Accumulator) error {
	return walkFields(raw, func(num protowire.Number, _ uint64, raw []byte) error {
		var dst []float64
		switch num {
		case fieldCalSums:
			dst = acc.Sums
		case fieldCalTrue:
			dst = acc.True
		case fieldCalCounts:
			dst = acc.Counts
		case fieldCalHistogram:
			dst = acc.Histogram
		default:
			return nil
		}
		vs, err := parseDoubles(raw)
		if err != nil {
			return err
		}
		if len(vs) != len(dst) {
			return fmt.Errorf("%w: calibration field %d has %d values, want %d", ErrIncompatiblePartial, num, len(vs), len(dst))
		}
		copy(dst, vs)
		return nil
	})
}

func decodePatch(raw []byte, classes int) (PatchRow, error) {
	var (
		id   string
		vals []float64
	)
	err := walkFields(raw, func(num protowire.Number, _ uint64, raw []byte) error {
		var err error
		switch num {
		case fieldPatchID:
			id = string(raw)
		case fieldPatchValues:
			vals, err = parseDoubles(raw)
		}
		return err
	})
	if err != nil {
		return PatchRow{}, err
	}
	return patchRowFromValues(id, vals, classes)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// appendDoubles writes vs as a packed run of fixed64 values. Empty runs
// are omitted.
func appendDoubles(b []byte, num protowire.Number, vs []float64) []byte {
	if len(vs) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(8*len(vs)))
	for _, v := range vs {
		b = protowire.AppendFixed64(b, math.Float64bits(v))
	}
	return b
}

func parseDoubles(raw []byte) ([]float64, error) {
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("%w: packed doubles of %d bytes", ErrIncompatiblePartial, len(raw))
	}
	out := make([]float64, 0, len(raw)/8)
	for len(raw) > 0 {
		v, n := protowire.ConsumeFixed64(raw)
		if n < 0 {
			return nil, fmt.Errorf("%w: %w", ErrIncompatiblePartial, protowire.ParseError(n))
		}
		out = append(out, math.Float64frombits(v))
		raw = raw[n:]
	}
	return out, nil
}

// walkFields calls fn for every field of a wire-format message. Varint and
// fixed64 fields arrive in v, length-delimited fields in raw. Other wire
// types are skipped.
func walkFields(b []byte, fn func(num protowire.Number, v uint64, raw []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrIncompatiblePartial, protowire.ParseError(n))
		}
		b = b[n:]

		var (
			v   uint64
			raw []byte
		)
		switch typ {
		case protowire.VarintType:
			v, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			v, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			raw, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n >= 0 {
				b = b[n:]
				continue
			}
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %w", ErrIncompatiblePartial, num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(num, v, raw); err != nil {
			return err
		}
	}
	return nil
}
