// Package wire implements the binary frame codec for the transposition
// service's per-connection protocol: request decoding and response
// encoding, little-endian for all multi-byte integers, manual field
// packing with encoding/binary (no reflection).
package wire

import (
	"encoding/binary"
	"io"

	"github.com/behrlich/transposed"
	"github.com/behrlich/transposed/internal/constants"
)

// RequestOp identifies a request frame's operation.
type RequestOp byte

const (
	OpReserve RequestOp = 0
	OpCalc    RequestOp = 1
	OpPoll    RequestOp = 2
)

// ResponseOp identifies a response frame's operation.
type ResponseOp byte

const (
	RespReserve ResponseOp = 0
	RespCalc    ResponseOp = 1
	RespPoll    ResponseOp = 2
	RespError   ResponseOp = 3
)

// PollStatus is the single-byte status code carried in a Poll response.
type PollStatus byte

const (
	StatusNoData    PollStatus = 0
	StatusReserved  PollStatus = 1
	StatusRunning   PollStatus = 2
	StatusCompleted PollStatus = 3
)

// Request is a decoded request header. For OpCalc, the matrix body is
// NOT included here — the decoder reads exactly the 9-byte header
// (opcode + id) and leaves the raw matrix bytes on the stream for the
// caller to read directly via io.ReadFull against the job's buffer (the
// codec has no way to know the matrix's length without consulting the
// Job Manager for the reserved dimension and type).
type Request struct {
	Op       RequestOp
	TypeCode byte   // valid only when Op == OpReserve
	Dim      uint32 // valid only when Op == OpReserve
	ID       uint64 // valid when Op == OpCalc or Op == OpPoll
}

// DecodeRequest reads one request frame's opcode and fixed-size header
// fields from r. It reads exactly the bytes the opcode's header requires
// — no peeking, no trailing data consumed beyond the header.
//
// io.EOF is returned unmodified when r is exhausted exactly at a frame
// boundary (the connection handler treats this as a clean peer close).
// Any other short read returns a wrapped *transposed.Error with
// ErrCodeProtocol.
func DecodeRequest(r io.Reader) (Request, error) {
	var opByte [1]byte
	if _, err := io.ReadFull(r, opByte[:]); err != nil {
		return Request{}, err
	}

	op := RequestOp(opByte[0])
	switch op {
	case OpReserve:
		var body [5]byte
		if _, err := io.ReadFull(r, body[:]); err != nil {
			return Request{}, transposed.NewError("DECODE", transposed.ErrCodeProtocol, "truncated Reserve frame: "+err.Error())
		}
		return Request{
			Op:       OpReserve,
			TypeCode: body[0],
			Dim:      binary.LittleEndian.Uint32(body[1:5]),
		}, nil

	case OpCalc:
		var body [8]byte
		if _, err := io.ReadFull(r, body[:]); err != nil {
			return Request{}, transposed.NewError("DECODE", transposed.ErrCodeProtocol, "truncated Calc frame: "+err.Error())
		}
		return Request{
			Op: OpCalc,
			ID: binary.LittleEndian.Uint64(body[:]),
		}, nil

	case OpPoll:
		var body [8]byte
		if _, err := io.ReadFull(r, body[:]); err != nil {
			return Request{}, transposed.NewError("DECODE", transposed.ErrCodeProtocol, "truncated Poll frame: "+err.Error())
		}
		return Request{
			Op: OpPoll,
			ID: binary.LittleEndian.Uint64(body[:]),
		}, nil

	default:
		return Request{}, transposed.NewError("DECODE", transposed.ErrCodeProtocol, "unknown opcode")
	}
}

// EncodeReserveResponse writes a Reserve response: opcode 0, 8-byte id.
func EncodeReserveResponse(w io.Writer, id uint64) error {
	var buf [9]byte
	buf[0] = byte(RespReserve)
	binary.LittleEndian.PutUint64(buf[1:], id)
	_, err := w.Write(buf[:])
	return err
}

// EncodeCalcResponse writes a Calc response: opcode 1, empty body.
func EncodeCalcResponse(w io.Writer) error {
	_, err := w.Write([]byte{byte(RespCalc)})
	return err
}

// EncodePollResponse writes a Poll response: opcode 2, 1-byte status,
// followed by the matrix bytes only when status is Completed.
func EncodePollResponse(w io.Writer, status PollStatus, matrix []byte) error {
	if _, err := w.Write([]byte{byte(RespPoll), byte(status)}); err != nil {
		return err
	}
	if status == StatusCompleted {
		if _, err := w.Write(matrix); err != nil {
			return err
		}
	}
	return nil
}

// EncodeErrorResponse writes an Error response: opcode 3, 1-byte length,
// then that many bytes of UTF-8 message. Messages longer than
// MaxErrorMessageLen are truncated.
func EncodeErrorResponse(w io.Writer, msg string) error {
	b := []byte(msg)
	if len(b) > constants.MaxErrorMessageLen {
		b = b[:constants.MaxErrorMessageLen]
	}
	header := [2]byte{byte(RespError), byte(len(b))}
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}
