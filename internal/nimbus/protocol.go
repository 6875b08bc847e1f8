package nimbus

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/thrift/lib/go/thrift"
)

var errWriteOnly = errors.New("nimbus: call arguments cannot be decoded")
var errReadOnly = errors.New("nimbus: call results cannot be encoded")

// Exception is a declared exception raised by a Nimbus call, such as
// AlreadyAliveException or InvalidTopologyException.
type Exception struct {
	Name    string
	Message string
}

func (e *Exception) Error() string {
	return fmt.Sprintf("nimbus %s: %s", e.Name, e.Message)
}

// argField is one field of a call's argument struct.
type argField struct {
	id    int16
	name  string
	typ   thrift.TType
	write func(ctx context.Context, p thrift.TProtocol) error
}

func stringArg(id int16, name, v string) argField {
	return argField{id: id, name: name, typ: thrift.STRING, write: func(ctx context.Context, p thrift.TProtocol) error {
		return p.WriteString(ctx, v)
	}}
}

func binaryArg(id int16, name string, v []byte) argField {
	return argField{id: id, name: name, typ: thrift.STRING, write: func(ctx context.Context, p thrift.TProtocol) error {
		return p.WriteBinary(ctx, v)
	}}
}

// structWriter is the encoding half of thrift.TStruct.
type structWriter interface {
	Write(ctx context.Context, p thrift.TProtocol) error
}

func structArg(id int16, name string, v structWriter) argField {
	return argField{id: id, name: name, typ: thrift.STRUCT, write: v.Write}
}

// callArgs is the argument struct of one service method, written the way the
// Thrift compiler lays out "<method>_args".
type callArgs struct {
	name   string
	fields []argField
}

func newArgs(method string, fields ...argField) *callArgs {
	return &callArgs{name: method + "_args", fields: fields}
}

func (a *callArgs) Write(ctx context.Context, p thrift.TProtocol) error {
	if err := p.WriteStructBegin(ctx, a.name); err != nil {
		return thrift.PrependError(fmt.Sprintf("%s write struct begin error: ", a.name), err)
	}
	for _, f := range a.fields {
		if err := p.WriteFieldBegin(ctx, f.name, f.typ, f.id); err != nil {
			return thrift.PrependError(fmt.Sprintf("%s write field begin error %d:%s: ", a.name, f.id, f.name), err)
		}
		if err := f.write(ctx, p); err != nil {
			return thrift.PrependError(fmt.Sprintf("%s.%s (%d) field write error: ", a.name, f.name, f.id), err)
		}
		if err := p.WriteFieldEnd(ctx); err != nil {
			return thrift.PrependError(fmt.Sprintf("%s write field end error %d:%s: ", a.name, f.id, f.name), err)
		}
	}
	if err := p.WriteFieldStop(ctx); err != nil {
		return thrift.PrependError("write field stop error: ", err)
	}
	if err := p.WriteStructEnd(ctx); err != nil {
		return thrift.PrependError("write struct stop error: ", err)
	}
	return nil
}

func (a *callArgs) Read(context.Context, thrift.TProtocol) error { return errWriteOnly }

// callResult is the result struct of one service method: field 0 carries a
// string return value, fields 1.. carry declared exceptions.
type callResult struct {
	// exceptions maps a result field id to the exception type name.
	exceptions map[int16]string

	success   string
	exception *Exception
}

func newResult(exceptions map[int16]string) *callResult {
	return &callResult{exceptions: exceptions}
}

// Err returns the declared exception the call raised, if any.
func (r *callResult) Err() error {
	if r.exception != nil {
		return r.exception
	}
	return nil
}

func (r *callResult) Read(ctx context.Context, p thrift.TProtocol) error {
	if _, err := p.ReadStructBegin(ctx); err != nil {
		return thrift.PrependError("read result struct begin error: ", err)
	}
	for {
		_, typ, id, err := p.ReadFieldBegin(ctx)
		if err != nil {
			return thrift.PrependError(fmt.Sprintf("field %d read error: ", id), err)
		}
		if typ == thrift.STOP {
			break
		}
		switch {
		case id == 0 && typ == thrift.STRING:
			if r.success, err = p.ReadString(ctx); err != nil {
				return thrift.PrependError("error reading field 0: ", err)
			}
		case id > 0 && typ == thrift.STRUCT:
			msg, err := readExceptionMessage(ctx, p)
			if err != nil {
				return thrift.PrependError(fmt.Sprintf("error reading exception field %d: ", id), err)
			}
			name, ok := r.exceptions[id]
			if !ok {
				name = fmt.Sprintf("exception(%d)", id)
			}
			r.exception = &Exception{Name: name, Message: msg}
		default:
			if err := p.Skip(ctx, typ); err != nil {
				return err
			}
		}
		if err := p.ReadFieldEnd(ctx); err != nil {
			return err
		}
	}
	if err := p.ReadStructEnd(ctx); err != nil {
		return thrift.PrependError("read result struct end error: ", err)
	}
	return nil
}

func (r *callResult) Write(context.Context, thrift.TProtocol) error { return errReadOnly }

// readExceptionMessage reads a Storm exception struct, all of which carry
// their message in field 1.
func readExceptionMessage(ctx context.Context, p thrift.TProtocol) (string, error) {
	if _, err := p.ReadStructBegin(ctx); err != nil {
		return "", err
	}
	var msg string
	for {
		_, typ, id, err := p.ReadFieldBegin(ctx)
		if err != nil {
			return "", err
		}
		if typ == thrift.STOP {
			break
		}
		if id == 1 && typ == thrift.STRING {
			if msg, err = p.ReadString(ctx); err != nil {
				return "", err
			}
		} else if err := p.Skip(ctx, typ); err != nil {
			return "", err
		}
		if err := p.ReadFieldEnd(ctx); err != nil {
			return "", err
		}
	}
	return msg, p.ReadStructEnd(ctx)
}
