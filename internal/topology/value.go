package topology

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/thrift/lib/go/thrift"
)

// maxDepth bounds struct/container nesting while decoding.
const maxDepth = 64

var (
	// ErrInvalidType is returned for a type tag outside the binary protocol.
	ErrInvalidType = errors.New("invalid thrift type tag")
	// ErrTooDeep is returned when nesting exceeds maxDepth.
	ErrTooDeep = errors.New("thrift value nested too deeply")
)

// Value is one self-describing Thrift value. Exactly the members matching
// Type are populated.
type Value struct {
	Type thrift.TType

	Bool   bool
	Int    int64 // BYTE, I16, I32, I64
	Double float64
	Bytes  []byte // STRING and binary

	Fields []Field // STRUCT

	ElemType thrift.TType // LIST, SET
	Elems    []Value

	KeyType thrift.TType // MAP
	ValType thrift.TType
	Entries []Entry
}

// Field is a struct member identified by its Thrift field id.
type Field struct {
	ID    int16
	Value Value
}

// Entry is a single map entry.
type Entry struct {
	Key   Value
	Value Value
}

// Field returns the struct member with the given id.
func (v Value) Field(id int16) (Value, bool) {
	for _, f := range v.Fields {
		if f.ID == id {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Text returns the value as text when it is a STRING.
func (v Value) Text() string {
	if v.Type != thrift.STRING {
		return ""
	}
	return string(v.Bytes)
}

func readStruct(ctx context.Context, p thrift.TProtocol, depth int) ([]Field, error) {
	if depth > maxDepth {
		return nil, ErrTooDeep
	}
	if _, err := p.ReadStructBegin(ctx); err != nil {
		return nil, err
	}
	var fields []Field
	for {
		_, typ, id, err := p.ReadFieldBegin(ctx)
		if err != nil {
			return nil, err
		}
		if typ == thrift.STOP {
			break
		}
		v, err := readValue(ctx, p, typ, depth+1)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", id, err)
		}
		if err := p.ReadFieldEnd(ctx); err != nil {
			return nil, err
		}
		fields = append(fields, Field{ID: id, Value: v})
	}
	if err := p.ReadStructEnd(ctx); err != nil {
		return nil, err
	}
	return fields, nil
}

func readValue(ctx context.Context, p thrift.TProtocol, typ thrift.TType, depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, ErrTooDeep
	}
	v := Value{Type: typ}
	var err error
	switch typ {
	case thrift.BOOL:
		v.Bool, err = p.ReadBool(ctx)
	case thrift.BYTE:
		var b int8
		b, err = p.ReadByte(ctx)
		v.Int = int64(b)
	case thrift.I16:
		var i int16
		i, err = p.ReadI16(ctx)
		v.Int = int64(i)
	case thrift.I32:
		var i int32
		i, err = p.ReadI32(ctx)
		v.Int = int64(i)
	case thrift.I64:
		v.Int, err = p.ReadI64(ctx)
	case thrift.DOUBLE:
		v.Double, err = p.ReadDouble(ctx)
	case thrift.STRING:
		v.Bytes, err = p.ReadBinary(ctx)
	case thrift.STRUCT:
		v.Fields, err = readStruct(ctx, p, depth)
	case thrift.LIST:
		var size int
		v.ElemType, size, err = p.ReadListBegin(ctx)
		if err == nil {
			v.Elems, err = readElems(ctx, p, v.ElemType, size, depth)
		}
		if err == nil {
			err = p.ReadListEnd(ctx)
		}
	case thrift.SET:
		var size int
		v.ElemType, size, err = p.ReadSetBegin(ctx)
		if err == nil {
			v.Elems, err = readElems(ctx, p, v.ElemType, size, depth)
		}
		if err == nil {
			err = p.ReadSetEnd(ctx)
		}
	case thrift.MAP:
		var size int
		v.KeyType, v.ValType, size, err = p.ReadMapBegin(ctx)
		if err == nil {
			v.Entries, err = readEntries(ctx, p, v.KeyType, v.ValType, size, depth)
		}
		if err == nil {
			err = p.ReadMapEnd(ctx)
		}
	default:
		return Value{}, fmt.Errorf("%w: %d", ErrInvalidType, typ)
	}
	if err != nil {
		return Value{}, err
	}
	return v, nil
}

// preallocLimit keeps a forged container size from forcing a huge allocation
// before any element has been read.
const preallocLimit = 1024

func readElems(ctx context.Context, p thrift.TProtocol, typ thrift.TType, size, depth int) ([]Value, error) {
	if size < 0 {
		return nil, fmt.Errorf("negative container size %d", size)
	}
	elems := make([]Value, 0, min(size, preallocLimit))
	for i := 0; i < size; i++ {
		e, err := readValue(ctx, p, typ, depth+1)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		elems = append(elems, e)
	}
	return elems, nil
}

func readEntries(ctx context.Context, p thrift.TProtocol, kt, vt thrift.TType, size, depth int) ([]Entry, error) {
	if size < 0 {
		return nil, fmt.Errorf("negative map size %d", size)
	}
	entries := make([]Entry, 0, min(size, preallocLimit))
	for i := 0; i < size; i++ {
		k, err := readValue(ctx, p, kt, depth+1)
		if err != nil {
			return nil, fmt.Errorf("map key %d: %w", i, err)
		}
		val, err := readValue(ctx, p, vt, depth+1)
		if err != nil {
			return nil, fmt.Errorf("map value %d: %w", i, err)
		}
		entries = append(entries, Entry{Key: k, Value: val})
	}
	return entries, nil
}

func writeStruct(ctx context.Context, p thrift.TProtocol, name string, fields []Field) error {
	if err := p.WriteStructBegin(ctx, name); err != nil {
		return err
	}
	for _, f := range fields {
		if err := p.WriteFieldBegin(ctx, "", f.Value.Type, f.ID); err != nil {
			return err
		}
		if err := writeValue(ctx, p, f.Value); err != nil {
			return fmt.Errorf("field %d: %w", f.ID, err)
		}
		if err := p.WriteFieldEnd(ctx); err != nil {
			return err
		}
	}
	if err := p.WriteFieldStop(ctx); err != nil {
		return err
	}
	return p.WriteStructEnd(ctx)
}

func writeValue(ctx context.Context, p thrift.TProtocol, v Value) error {
	switch v.Type {
	case thrift.BOOL:
		return p.WriteBool(ctx, v.Bool)
	case thrift.BYTE:
		return p.WriteByte(ctx, int8(v.Int))
	case thrift.I16:
		return p.WriteI16(ctx, int16(v.Int))
	case thrift.I32:
		return p.WriteI32(ctx, int32(v.Int))
	case thrift.I64:
		return p.WriteI64(ctx, v.Int)
	case thrift.DOUBLE:
		return p.WriteDouble(ctx, v.Double)
	case thrift.STRING:
		return p.WriteBinary(ctx, v.Bytes)
	case thrift.STRUCT:
		return writeStruct(ctx, p, "", v.Fields)
	case thrift.LIST:
		if err := p.WriteListBegin(ctx, v.ElemType, len(v.Elems)); err != nil {
			return err
		}
		for _, e := range v.Elems {
			if err := writeValue(ctx, p, e); err != nil {
				return err
			}
		}
		return p.WriteListEnd(ctx)
	case thrift.SET:
		if err := p.WriteSetBegin(ctx, v.ElemType, len(v.Elems)); err != nil {
			return err
		}
		for _, e := range v.Elems {
			if err := writeValue(ctx, p, e); err != nil {
				return err
			}
		}
		return p.WriteSetEnd(ctx)
	case thrift.MAP:
		if err := p.WriteMapBegin(ctx, v.KeyType, v.ValType, len(v.Entries)); err != nil {
			return err
		}
		for _, e := range v.Entries {
			if err := writeValue(ctx, p, e.Key); err != nil {
				return err
			}
			if err := writeValue(ctx, p, e.Value); err != nil {
				return err
			}
		}
		return p.WriteMapEnd(ctx)
	default:
		return fmt.Errorf("%w: %d", ErrInvalidType, v.Type)
	}
}
