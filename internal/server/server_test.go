package server

import (
	"bytes"
	"encoding/binary"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/behrlich/transposed/internal/eventlog"
	"github.com/behrlich/transposed/internal/memoracle"
	"github.com/behrlich/transposed/internal/metrics"
	"github.com/behrlich/transposed/internal/wire"
)

func startTestServer(t *testing.T, available uint64) (*Server, string) {
	t.Helper()
	s := New(memoracle.NewFakeOracle(available), metrics.NewMetrics(), eventlog.New(bytes.NewBuffer(nil)), nil)
	go func() {
		_ = s.ListenAndServe("0")
	}()

	require.Eventually(t, func() bool {
		_, err := s.BoundPort()
		return err == nil
	}, time.Second, time.Millisecond)

	port, err := s.BoundPort()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}

func TestEndToEndTinyU8(t *testing.T) {
	_, addr := startTestServer(t, 100_000_000_000)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	// Reserve(U8, 2)
	reserveFrame := []byte{byte(wire.OpReserve), 0, 2, 0, 0, 0}
	_, err = conn.Write(reserveFrame)
	require.NoError(t, err)

	respOp := make([]byte, 1)
	_, err = conn.Read(respOp)
	require.NoError(t, err)
	require.Equal(t, byte(wire.RespReserve), respOp[0])

	idBytes := make([]byte, 8)
	_, err = readFull(conn, idBytes)
	require.NoError(t, err)
	id := binary.LittleEndian.Uint64(idBytes)
	assert.EqualValues(t, 1, id)

	// Calc(id, [1,2,3,4])
	var calcFrame []byte
	calcFrame = append(calcFrame, byte(wire.OpCalc))
	idEnc := make([]byte, 8)
	binary.LittleEndian.PutUint64(idEnc, id)
	calcFrame = append(calcFrame, idEnc...)
	calcFrame = append(calcFrame, []byte{1, 2, 3, 4}...)
	_, err = conn.Write(calcFrame)
	require.NoError(t, err)

	calcResp := make([]byte, 1)
	_, err = readFull(conn, calcResp)
	require.NoError(t, err)
	require.Equal(t, byte(wire.RespCalc), calcResp[0])

	// Busy-poll until Completed.
	var result []byte
	require.Eventually(t, func() bool {
		pollFrame := append([]byte{byte(wire.OpPoll)}, idEnc...)
		_, err := conn.Write(pollFrame)
		if err != nil {
			return false
		}
		header := make([]byte, 2)
		if _, err := readFull(conn, header); err != nil {
			return false
		}
		if header[0] != byte(wire.RespPoll) {
			return false
		}
		if header[1] != byte(wire.StatusCompleted) {
			return false
		}
		result = make([]byte, 4)
		_, err = readFull(conn, result)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []byte{1, 3, 2, 4}, result)
}

func TestEndToEndInsufficientMemory(t *testing.T) {
	_, addr := startTestServer(t, 0)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	dimBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(dimBytes, 1000)
	frame := append([]byte{byte(wire.OpReserve), 0}, dimBytes...)
	_, err = conn.Write(frame)
	require.NoError(t, err)

	header := make([]byte, 2)
	_, err = readFull(conn, header)
	require.NoError(t, err)
	assert.Equal(t, byte(wire.RespError), header[0])

	msg := make([]byte, header[1])
	_, err = readFull(conn, msg)
	require.NoError(t, err)
	assert.Contains(t, string(msg), "insufficient memory")
}

func TestEndToEndUnknownOpcodeDoesNotPanic(t *testing.T) {
	_, addr := startTestServer(t, 100_000_000_000)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0xFF})
	require.NoError(t, err)

	header := make([]byte, 1)
	_, err = readFull(conn, header)
	require.NoError(t, err)
	assert.Equal(t, byte(wire.RespError), header[0])
}

func TestEndToEndTwoConnectionsIndependentIDs(t *testing.T) {
	_, addr := startTestServer(t, 100_000_000_000)

	connA, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer connA.Close()
	connB, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer connB.Close()

	reserveU16 := func(conn net.Conn, dim uint32) uint64 {
		dimBytes := make([]byte, 4)
		binary.LittleEndian.PutUint32(dimBytes, dim)
		frame := append([]byte{byte(wire.OpReserve), 1}, dimBytes...)
		_, err := conn.Write(frame)
		require.NoError(t, err)

		op := make([]byte, 1)
		_, err = readFull(conn, op)
		require.NoError(t, err)
		require.Equal(t, byte(wire.RespReserve), op[0])

		idBytes := make([]byte, 8)
		_, err = readFull(conn, idBytes)
		require.NoError(t, err)
		return binary.LittleEndian.Uint64(idBytes)
	}

	idA := reserveU16(connA, 64)
	idB := reserveU16(connB, 64)

	assert.EqualValues(t, 1, idA)
	assert.EqualValues(t, 1, idB)
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
