package serialization

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"
)

// sliceDepth counts nested slice levels of t.
func sliceDepth(t reflect.Type) int {
	d := 0
	for t.Kind() == reflect.Slice {
		d++
		t = t.Elem()
	}
	return d
}

func stripSlices(t reflect.Type, rank int) reflect.Type {
	for i := 0; i < rank; i++ {
		t = t.Elem()
	}
	return t
}

// writeArray encodes a slice. Rank-1 slices of the twelve blittable element
// types take the bulk little-endian path. Deeper nests encode as one
// rectangular rank-n block when every level has equal-length, distinct,
// non-nil rows; otherwise the slice encodes rank-1 and each element recurses
// through the dispatcher.
func (m *Manager) writeArray(ctx *SerializeContext, v reflect.Value, expected reflect.Type) error {
	t := v.Type()
	w := ctx.Writer

	if tok, ok := elemToArrayToken[t.Elem()]; ok && t.Name() == "" {
		if t == expected {
			w.WriteToken(TokenExpectedType)
		} else {
			w.WriteToken(TokenSpecifiedType)
			w.WriteToken(tok)
		}
		m.checkLargeObject(t, v.Len()*int(t.Elem().Size()))
		writeBulk(w, v)
		return nil
	}

	rank, dims := probeRank(v)
	elemType := stripSlices(t, rank)

	m.writeTypeHeader(w, t, expected)
	w.WriteUint8(uint8(rank))
	total := 1
	for _, d := range dims {
		w.WriteUint32(uint32(d))
		total *= d
	}
	m.checkLargeObject(t, total*int(elemType.Size()))

	if rank <= 3 {
		return m.writeArrayElements(ctx, v, elemType, rank)
	}
	// For ranks above three, walk a stride table and index linearly. The
	// element order is row-major either way.
	strides := strideTable(dims)
	idx := make([]int, rank)
	for i := 0; i < total; i++ {
		rem := i
		for d := 0; d < rank; d++ {
			idx[d] = rem / strides[d]
			rem %= strides[d]
		}
		e := v
		for d := 0; d < rank; d++ {
			e = e.Index(idx[d])
		}
		if err := m.serializeInner(ctx, e.Interface(), elemType); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) writeArrayElements(ctx *SerializeContext, v reflect.Value, elemType reflect.Type, rank int) error {
	if rank == 1 {
		for i := 0; i < v.Len(); i++ {
			if err := m.serializeInner(ctx, v.Index(i).Interface(), elemType); err != nil {
				return err
			}
		}
		return nil
	}
	for i := 0; i < v.Len(); i++ {
		if err := m.writeArrayElements(ctx, v.Index(i), elemType, rank-1); err != nil {
			return err
		}
	}
	return nil
}

func strideTable(dims []int) []int {
	strides := make([]int, len(dims))
	s := 1
	for d := len(dims) - 1; d >= 0; d-- {
		strides[d] = s
		s *= dims[d]
	}
	return strides
}

// probeRank decides the encoded rank of a nested slice: the full nesting
// depth when the value is rectangular with distinct non-nil rows at every
// level and the innermost element has no bulk token, otherwise one. Row
// distinctness matters because rows folded into a rank-n block lose their
// identity on the wire.
func probeRank(v reflect.Value) (int, []int) {
	t := v.Type()
	depth := sliceDepth(t)
	if _, bulk := elemToArrayToken[stripSlices(t, depth)]; depth == 1 || bulk {
		return 1, []int{v.Len()}
	}
	dims := make([]int, 0, depth)
	dims = append(dims, v.Len())
	level := []reflect.Value{v}
	for d := 1; d < depth; d++ {
		width := -1
		seen := make(map[uintptr]struct{})
		var next []reflect.Value
		for _, row := range level {
			for i := 0; i < row.Len(); i++ {
				inner := row.Index(i)
				if inner.IsNil() {
					return 1, []int{v.Len()}
				}
				if width < 0 {
					width = inner.Len()
				} else if inner.Len() != width {
					return 1, []int{v.Len()}
				}
				if inner.Len() > 0 {
					p := inner.Pointer()
					if _, dup := seen[p]; dup {
						return 1, []int{v.Len()}
					}
					seen[p] = struct{}{}
				}
				next = append(next, inner)
			}
		}
		if width < 0 {
			width = 0
		}
		dims = append(dims, width)
		level = next
	}
	return depth, dims
}

// writeBulk writes the 4-byte length and the raw little-endian payload of a
// blittable-element slice.
func writeBulk(w *Writer, v reflect.Value) {
	n := v.Len()
	w.WriteUint32(uint32(n))
	switch s := v.Interface().(type) {
	case []byte:
		w.WriteRaw(s)
	case []int8:
		for _, x := range s {
			w.WriteInt8(x)
		}
	case []bool:
		for _, x := range s {
			if x {
				w.WriteUint8(1)
			} else {
				w.WriteUint8(0)
			}
		}
	case []Char:
		for _, x := range s {
			w.WriteInt32(int32(x))
		}
	case []int16:
		for _, x := range s {
			w.WriteInt16(x)
		}
	case []uint16:
		for _, x := range s {
			w.WriteUint16(x)
		}
	case []int32:
		for _, x := range s {
			w.WriteInt32(x)
		}
	case []uint32:
		for _, x := range s {
			w.WriteUint32(x)
		}
	case []int64:
		for _, x := range s {
			w.WriteInt64(x)
		}
	case []uint64:
		for _, x := range s {
			w.WriteUint64(x)
		}
	case []float32:
		for _, x := range s {
			w.WriteFloat32(x)
		}
	case []float64:
		for _, x := range s {
			w.WriteFloat64(x)
		}
	}
}

// readBulk reads the body of a blittable-element slice of type t.
func readBulk(r *Reader, t reflect.Type) (any, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	count := int(n)
	if count*int(t.Elem().Size()) > r.Remaining() {
		return nil, fmt.Errorf("%w: array of %d elements exceeds remaining buffer", ErrStreamFormat, count)
	}
	v := reflect.MakeSlice(t, count, count)
	switch s := v.Interface().(type) {
	case []byte:
		b, err := r.ReadRaw(count)
		if err != nil {
			return nil, err
		}
		copy(s, b)
	case []int8:
		for i := range s {
			if s[i], err = r.ReadInt8(); err != nil {
				return nil, err
			}
		}
	case []bool:
		for i := range s {
			var b uint8
			if b, err = r.ReadUint8(); err != nil {
				return nil, err
			}
			s[i] = b != 0
		}
	case []Char:
		for i := range s {
			var c int32
			if c, err = r.ReadInt32(); err != nil {
				return nil, err
			}
			s[i] = Char(c)
		}
	case []int16:
		for i := range s {
			if s[i], err = r.ReadInt16(); err != nil {
				return nil, err
			}
		}
	case []uint16:
		for i := range s {
			if s[i], err = r.ReadUint16(); err != nil {
				return nil, err
			}
		}
	case []int32:
		for i := range s {
			if s[i], err = r.ReadInt32(); err != nil {
				return nil, err
			}
		}
	case []uint32:
		for i := range s {
			if s[i], err = r.ReadUint32(); err != nil {
				return nil, err
			}
		}
	case []int64:
		for i := range s {
			if s[i], err = r.ReadInt64(); err != nil {
				return nil, err
			}
		}
	case []uint64:
		for i := range s {
			if s[i], err = r.ReadUint64(); err != nil {
				return nil, err
			}
		}
	case []float32:
		for i := range s {
			if s[i], err = r.ReadFloat32(); err != nil {
				return nil, err
			}
		}
	case []float64:
		for i := range s {
			if s[i], err = r.ReadFloat64(); err != nil {
				return nil, err
			}
		}
	}
	return v.Interface(), nil
}

// readArrayBody reads the rank, dims, and row-major elements of a generic
// array of slice type t, recording the result before the elements so
// references into the array's own body resolve.
func (m *Manager) readArrayBody(ctx *DeserializeContext, t reflect.Type, offset uint32) (any, error) {
	if _, ok := elemToArrayToken[t.Elem()]; ok && t.Name() == "" {
		v, err := readBulk(ctx.Reader, t)
		if err != nil {
			return nil, err
		}
		ctx.objects[offset] = v
		return v, nil
	}
	rank, err := ctx.Reader.ReadUint8()
	if err != nil {
		return nil, err
	}
	if int(rank) < 1 || int(rank) > sliceDepth(t) {
		return nil, fmt.Errorf("%w: array rank %d does not fit type %s", ErrStreamFormat, rank, t)
	}
	dims := make([]int, rank)
	for i := range dims {
		n, err := ctx.Reader.ReadUint32()
		if err != nil {
			return nil, err
		}
		dims[i] = int(n)
	}
	elemType := stripSlices(t, int(rank))
	v := makeNested(t, dims)
	ctx.objects[offset] = v.Interface()
	if err := m.readArrayElements(ctx, v, elemType, dims); err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

func makeNested(t reflect.Type, dims []int) reflect.Value {
	v := reflect.MakeSlice(t, dims[0], dims[0])
	if len(dims) > 1 {
		for i := 0; i < dims[0]; i++ {
			v.Index(i).Set(makeNested(t.Elem(), dims[1:]))
		}
	}
	return v
}

func (m *Manager) readArrayElements(ctx *DeserializeContext, v reflect.Value, elemType reflect.Type, dims []int) error {
	if len(dims) == 1 {
		for i := 0; i < dims[0]; i++ {
			obj, err := m.deserializeInner(ctx, elemType)
			if err != nil {
				return err
			}
			if err := assign(v.Index(i), obj); err != nil {
				return err
			}
		}
		return nil
	}
	for i := 0; i < dims[0]; i++ {
		if err := m.readArrayElements(ctx, v.Index(i), elemType, dims[1:]); err != nil {
			return err
		}
	}
	return nil
}

// assign stores obj into the addressable destination, allowing nil for
// nilable kinds.
func assign(dst reflect.Value, obj any) error {
	v, err := valueFor(obj, dst.Type())
	if err != nil {
		return err
	}
	dst.Set(v)
	return nil
}

// copyArray deep-copies a slice. Shallow-copyable element types allow a
// whole-slice clone; anything else allocates and copies each element through
// the dispatcher.
func (m *Manager) copyArray(ctx *CopyContext, v reflect.Value) (any, error) {
	t := v.Type()
	n := v.Len()
	m.checkLargeObject(t, n*int(t.Elem().Size()))
	clone := reflect.MakeSlice(t, n, n)
	ctx.RecordCopy(v.Interface(), clone.Interface())
	if m.registry.shallowCopyable(t.Elem()) {
		reflect.Copy(clone, v)
		return clone.Interface(), nil
	}
	for i := 0; i < n; i++ {
		copied, err := ctx.Copy(v.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		if err := assign(clone.Index(i), copied); err != nil {
			return nil, err
		}
	}
	return clone.Interface(), nil
}

// checkLargeObject reports allocations above the configured threshold to the
// statistics sink and the log. It never alters semantics.
func (m *Manager) checkLargeObject(t reflect.Type, bytes int) {
	if m.largeObjectThreshold <= 0 || bytes <= m.largeObjectThreshold {
		return
	}
	m.stats.RecordLargeObjectAllocation(t.String(), bytes)
	m.logger.Warn("large object allocation",
		zap.String("type", t.String()),
		zap.Int("bytes", bytes),
		zap.Int("threshold", m.largeObjectThreshold))
}
