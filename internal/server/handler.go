package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"time"

	"github.com/behrlich/transposed"
	"github.com/behrlich/transposed/internal/job"
	"github.com/behrlich/transposed/internal/jobmanager"
	"github.com/behrlich/transposed/internal/matrixtype"
	"github.com/behrlich/transposed/internal/wire"
)

// handleConn runs one connection's decode -> dispatch -> encode loop
// until the peer closes or an unrecoverable protocol error occurs.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	connID := conn.RemoteAddr().String()
	mgr := jobmanager.New(connID, s.Oracle, s.Metrics, s.Log)

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	for {
		req, err := wire.DecodeRequest(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			// A malformed header means the stream is no longer aligned on a
			// frame boundary; reply with an Error if still writable, then
			// terminate — resync is impossible without knowing how many
			// bytes the caller meant to send.
			s.writeErrorResponse(w, err)
			return
		}

		if !s.dispatch(connID, mgr, req, r, w) {
			return
		}
	}
}

// dispatch handles one decoded request, writing exactly one response.
// It returns false when the connection must be terminated.
func (s *Server) dispatch(connID string, mgr *jobmanager.Manager, req wire.Request, r *bufio.Reader, w *bufio.Writer) bool {
	now := time.Now().UnixNano()

	switch req.Op {
	case wire.OpReserve:
		s.EventLog.Request(connID, now, "Reserve", map[string]any{"type": req.TypeCode, "dim": req.Dim})
		return s.handleReserve(connID, mgr, req, w)

	case wire.OpCalc:
		s.EventLog.Request(connID, now, "Calc", map[string]any{"id": req.ID})
		return s.handleCalc(connID, mgr, req, r, w)

	case wire.OpPoll:
		s.EventLog.Request(connID, now, "Poll", map[string]any{"id": req.ID})
		return s.handlePoll(connID, mgr, req, w)

	default:
		s.writeErrorResponse(w, transposed.NewError("DISPATCH", transposed.ErrCodeProtocol, "unknown opcode"))
		return false
	}
}

func (s *Server) handleReserve(connID string, mgr *jobmanager.Manager, req wire.Request, w *bufio.Writer) bool {
	mt, ok := matrixtype.FromByte(req.TypeCode)
	if !ok {
		return s.respondError(connID, w, transposed.NewConnError("RESERVE", connID, transposed.ErrCodeProtocol, "unknown matrix type code"))
	}

	id, rerr := mgr.Reserve(mt, req.Dim)
	if rerr != nil {
		return s.respondError(connID, w, rerr)
	}

	if err := wire.EncodeReserveResponse(w, id); err != nil {
		s.Log.Warnf("write reserve response: %v", err)
		return false
	}
	s.flush(w)
	s.EventLog.Response(connID, time.Now().UnixNano(), "Reserve", map[string]any{"id": id})
	return true
}

// handleCalc performs fill and start back to back against the job
// manager, matching the wire table's single Calc opcode (there is no
// separate start opcode and no worker-count field on the wire — start is
// always invoked with the job's stored default hint).
func (s *Server) handleCalc(connID string, mgr *jobmanager.Manager, req wire.Request, r *bufio.Reader, w *bufio.Writer) bool {
	if ferr := mgr.Fill(req.ID, r); ferr != nil {
		// If the id doesn't exist, the matrix byte count is unknowable, so
		// the stream cannot be resynchronized at the next frame boundary;
		// any other Fill failure (an I/O error on an already-known-length
		// read, or a buffer slot still taken by a running transpose, in
		// which case no matrix bytes were read) also leaves the stream
		// unaligned. All of these terminate
		// after replying, unlike Reserve/Poll lookup errors which never
		// consume unbounded trailing bytes.
		s.respondError(connID, w, ferr)
		return false
	}

	if serr := mgr.Start(req.ID, 0); serr != nil {
		return s.respondError(connID, w, serr)
	}

	if err := wire.EncodeCalcResponse(w); err != nil {
		s.Log.Warnf("write calc response: %v", err)
		return false
	}
	s.flush(w)
	s.EventLog.Response(connID, time.Now().UnixNano(), "Calc", nil)
	return true
}

func (s *Server) handlePoll(connID string, mgr *jobmanager.Manager, req wire.Request, w *bufio.Writer) bool {
	res, perr := mgr.Poll(req.ID)
	if perr != nil {
		return s.respondError(connID, w, perr)
	}

	status := pollStatus(res)
	if err := wire.EncodePollResponse(w, status, res.Bytes); err != nil {
		s.Log.Warnf("write poll response: %v", err)
		return false
	}
	s.flush(w)
	s.EventLog.Response(connID, time.Now().UnixNano(), "Poll", map[string]any{"status": status})
	return true
}

func pollStatus(res jobmanager.PollResult) wire.PollStatus {
	if !res.Exists {
		return wire.StatusNoData
	}
	switch res.Status {
	case job.Reserved:
		return wire.StatusReserved
	case job.Running:
		return wire.StatusRunning
	case job.Completed:
		return wire.StatusCompleted
	default:
		return wire.StatusNoData
	}
}

// respondError writes an Error frame for a recoverable per-request
// failure (resource/lookup errors always surface; the connection stays
// open since the stream remains aligned). It returns true so the caller
// can keep serving the connection, or false if the Error frame could not
// be written.
func (s *Server) respondError(connID string, w *bufio.Writer, e *transposed.Error) bool {
	if err := wire.EncodeErrorResponse(w, e.Error()); err != nil {
		s.Log.Warnf("write error response: %v", err)
		return false
	}
	s.flush(w)
	s.EventLog.Response(connID, time.Now().UnixNano(), "Error", map[string]any{"code": e.Code})
	return true
}

// writeErrorResponse writes an Error frame for a decode-time failure,
// ignoring write errors since the connection is being torn down either
// way.
func (s *Server) writeErrorResponse(w *bufio.Writer, err error) {
	var se *transposed.Error
	msg := err.Error()
	if errors.As(err, &se) {
		msg = se.Error()
	}
	_ = wire.EncodeErrorResponse(w, msg)
	s.flush(w)
}

func (s *Server) flush(w *bufio.Writer) {
	if err := w.Flush(); err != nil {
		s.Log.Warnf("flush: %v", err)
	}
}
