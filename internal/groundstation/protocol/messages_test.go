package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inspirers/groundstation/internal/groundstation/geo"
	"github.com/inspirers/groundstation/internal/groundstation/planner"
)

func TestParseEnvelopeMissingMsgType(t *testing.T) {
	_, err := ParseEnvelope([]byte(`{"foo":"bar"}`))
	require.Error(t, err)
}

func TestParseEnvelopeInvalidJSON(t *testing.T) {
	_, err := ParseEnvelope([]byte(`not json`))
	require.Error(t, err)
}

func TestEnvelopeDecodesConcreteType(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"msg_type":"Position","latitude":57.7,"longitude":11.9,"altitude":42}`))
	require.NoError(t, err)
	require.Equal(t, MsgPosition, env.MsgType)

	var pos PositionMessage
	require.NoError(t, env.Decode(&pos))
	assert.Equal(t, 57.7, pos.Latitude)
	assert.Equal(t, 42.0, pos.Altitude)
}

func TestCandidateMessageNullIsEndOfCandidates(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"msg_type":"candidate","candidate":null}`))
	require.NoError(t, err)

	var cand CandidateMessage
	require.NoError(t, env.Decode(&cand))
	assert.Nil(t, cand.Candidate)
}

func TestFormatAssignmentTruncatesFields(t *testing.T) {
	target := planner.FlyToTarget{
		Coordinate: geo.Coordinate{Lat: 57.708661123, Lng: 11.974449987, Alt: 42.5},
		AngleDeg:   271.9,
	}
	msg := FormatAssignment(target)

	assert.Equal(t, MsgCoordinateAssignment, msg.MsgType)
	assert.Len(t, msg.Lat, 9)
	assert.Len(t, msg.Lng, 9)
	assert.Len(t, msg.Alt, 2)
	assert.Equal(t, "271", msg.Angle)
}

func TestBuildCommandFrameMergesPayload(t *testing.T) {
	cmd := CommandMessage{
		TargetDroneID: 2,
		Command:       "takeoff",
		Payload:       map[string]interface{}{"h": 30},
	}
	frame := cmd.BuildCommandFrame()

	assert.Equal(t, "takeoff", frame["msg_type"])
	assert.Equal(t, 30, frame["h"])
}
