package signalling

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inspirers/groundstation/internal/groundstation/geo"
	"github.com/inspirers/groundstation/internal/groundstation/planner"
	"github.com/inspirers/groundstation/internal/groundstation/protocol"
)

func testTargets(n int) []planner.FlyToTarget {
	targets := make([]planner.FlyToTarget, n)
	for i := range targets {
		targets[i] = planner.FlyToTarget{
			Coordinate: geo.Coordinate{Lat: 57.7, Lng: 11.9 + float64(i)*0.01, Alt: 40},
			AngleDeg:   90,
		}
	}
	return targets
}

func dialTestServer(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn
}

func TestSlotAssignmentSendsCoordinateOnConnect(t *testing.T) {
	srv := NewServer(Config{Targets: testTargets(1)}, logrus.NewEntry(logrus.New()))
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	conn := dialTestServer(t, ts.URL)
	defer conn.Close()

	var assignment protocol.CoordinateAssignmentMessage
	require.NoError(t, conn.ReadJSON(&assignment))
	assert.Equal(t, protocol.MsgCoordinateAssignment, assignment.MsgType)
}

func TestCoordinateRequestResendsIdenticalAssignment(t *testing.T) {
	srv := NewServer(Config{Targets: testTargets(1)}, logrus.NewEntry(logrus.New()))
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	conn := dialTestServer(t, ts.URL)
	defer conn.Close()

	var first protocol.CoordinateAssignmentMessage
	require.NoError(t, conn.ReadJSON(&first))

	require.NoError(t, conn.WriteJSON(map[string]string{"msg_type": protocol.MsgCoordinateRequest}))

	var second protocol.CoordinateAssignmentMessage
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, first, second)
}

func TestCommandFanoutReachesOnlyAddressedDrone(t *testing.T) {
	srv := NewServer(Config{Targets: testTargets(2)}, logrus.NewEntry(logrus.New()))
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	go srv.Run(runCtx)

	conn1 := dialTestServer(t, ts.URL)
	defer conn1.Close()
	var discard protocol.CoordinateAssignmentMessage
	require.NoError(t, conn1.ReadJSON(&discard))

	conn2 := dialTestServer(t, ts.URL)
	defer conn2.Close()
	require.NoError(t, conn2.ReadJSON(&discard))

	// Give accept() time to register both sessions before the command fires.
	time.Sleep(50 * time.Millisecond)

	srv.EnqueueCommand(protocol.CommandMessage{
		TargetDroneID: 2,
		Command:       "takeoff",
		Payload:       map[string]interface{}{"h": float64(30)},
	})

	_ = conn1.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var frame map[string]interface{}
	err := conn1.ReadJSON(&frame)
	assert.Error(t, err, "drone 1 must not receive a command addressed to drone 2")

	_ = conn2.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn2.ReadJSON(&frame))
	assert.Equal(t, "takeoff", frame["msg_type"])
	assert.Equal(t, float64(30), frame["h"])
}

func TestOverCapacityDroneSharesLastSlot(t *testing.T) {
	targets := testTargets(2)
	srv := NewServer(Config{Targets: targets}, logrus.NewEntry(logrus.New()))
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	var discard protocol.CoordinateAssignmentMessage
	for i := 0; i < 2; i++ {
		c := dialTestServer(t, ts.URL)
		defer c.Close()
		require.NoError(t, c.ReadJSON(&discard))
	}

	conn3 := dialTestServer(t, ts.URL)
	defer conn3.Close()
	var overflow protocol.CoordinateAssignmentMessage
	require.NoError(t, conn3.ReadJSON(&overflow))
	assert.Equal(t, protocol.FormatAssignment(targets[len(targets)-1]).Lng, overflow.Lng)
}

func TestSlotReleasedOnDisconnectIsReused(t *testing.T) {
	targets := testTargets(1)
	srv := NewServer(Config{Targets: targets}, logrus.NewEntry(logrus.New()))
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	var first protocol.CoordinateAssignmentMessage
	conn1 := dialTestServer(t, ts.URL)
	require.NoError(t, conn1.ReadJSON(&first))
	require.NoError(t, conn1.Close())

	// Wait for the server to observe the closed connection and release the
	// slot claim via remove().
	require.Eventually(t, func() bool {
		srv.mu.RLock()
		defer srv.mu.RUnlock()
		return len(srv.slotOwner) == 0
	}, time.Second, 10*time.Millisecond)

	var second protocol.CoordinateAssignmentMessage
	conn2 := dialTestServer(t, ts.URL)
	defer conn2.Close()
	require.NoError(t, conn2.ReadJSON(&second))
	assert.Equal(t, protocol.FormatAssignment(targets[0]).Lng, second.Lng)
}
