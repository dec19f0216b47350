package replaycompare

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompare_NoAnomaliesWhenIdentical(t *testing.T) {
	projected := []ProjectedEvent{{Seq: 1, Signature: "sigA", EventType: "claimed", ProjectionHash: "h1"}}
	trace := []TraceEvent{{Seq: 1, Signature: "sigA", EventType: "claimed", Hash: "h1"}}

	result := Compare(projected, trace, Lenient, nil)
	require.Empty(t, result.Anomalies)
}

func TestCompare_HashMismatch(t *testing.T) {
	projected := []ProjectedEvent{{Seq: 1, Signature: "sigA", EventType: "claimed", ProjectionHash: "h1"}}
	trace := []TraceEvent{{Seq: 1, Signature: "sigA", EventType: "claimed", Hash: "h2"}}

	result := Compare(projected, trace, Lenient, nil)
	require.Len(t, result.Anomalies, 1)
	require.Equal(t, CodeHashMismatch, result.Anomalies[0].Code)
	require.Equal(t, SeverityError, result.Anomalies[0].Severity)
}

func TestCompare_MissingEvent(t *testing.T) {
	projected := []ProjectedEvent{{Seq: 1, Signature: "sigA", EventType: "claimed", ProjectionHash: "h1"}}
	result := Compare(projected, nil, Lenient, nil)
	require.Len(t, result.Anomalies, 1)
	require.Equal(t, CodeMissingEvent, result.Anomalies[0].Code)
}

func TestCompare_UnexpectedEventIsWarning(t *testing.T) {
	trace := []TraceEvent{{Seq: 1, Signature: "sigA", EventType: "claimed", Hash: "h1"}}
	result := Compare(nil, trace, Lenient, nil)
	require.Len(t, result.Anomalies, 1)
	require.Equal(t, CodeUnexpectedEvent, result.Anomalies[0].Code)
	require.Equal(t, SeverityWarning, result.Anomalies[0].Severity)
}

func TestCompare_TypeMismatch(t *testing.T) {
	projected := []ProjectedEvent{{Seq: 1, Signature: "sigA", EventType: "claimed", ProjectionHash: "h1"}}
	trace := []TraceEvent{{Seq: 1, Signature: "sigA", EventType: "released", Hash: "h1"}}
	result := Compare(projected, trace, Lenient, nil)
	require.Len(t, result.Anomalies, 1)
	require.Equal(t, CodeTypeMismatch, result.Anomalies[0].Code)
}

func TestCompare_StrictModeJoinsBySeqAndSignature(t *testing.T) {
	projected := []ProjectedEvent{{Seq: 1, Signature: "sigA", EventType: "claimed", ProjectionHash: "h1"}}
	trace := []TraceEvent{{Seq: 1, Signature: "sigB", EventType: "claimed", Hash: "h1"}}

	lenient := Compare(projected, trace, Lenient, nil)
	require.Empty(t, lenient.Anomalies)

	strict := Compare(projected, trace, Strict, nil)
	require.Len(t, strict.Anomalies, 2) // missing (projected sigA) + unexpected (trace sigB)
}

func TestCompare_DuplicateSequenceDetectedInProjection(t *testing.T) {
	projected := []ProjectedEvent{
		{Seq: 1, Signature: "sigA", EventType: "claimed", ProjectionHash: "h1"},
		{Seq: 1, Signature: "sigB", EventType: "claimed", ProjectionHash: "h1"},
	}
	result := Compare(projected, nil, Lenient, nil)
	found := false
	for _, a := range result.Anomalies {
		if a.Code == CodeDuplicateSequence {
			found = true
		}
	}
	require.True(t, found)
}

func TestCompare_TransitionInvalidWhenValidatorRejects(t *testing.T) {
	projected := []ProjectedEvent{
		{Seq: 1, Signature: "sigA", EventType: "claimed", ProjectionHash: "h1"},
		{Seq: 2, Signature: "sigB", EventType: "claimed", ProjectionHash: "h2"},
	}
	trace := []TraceEvent{
		{Seq: 1, Signature: "sigA", EventType: "claimed", Hash: "h1"},
		{Seq: 2, Signature: "sigB", EventType: "claimed", Hash: "h2"},
	}
	validate := func(prev, curr string) bool { return !(prev == "claimed" && curr == "claimed") }

	result := Compare(projected, trace, Lenient, validate)
	require.Len(t, result.Anomalies, 1)
	require.Equal(t, CodeTransitionInvalid, result.Anomalies[0].Code)
	require.EqualValues(t, 2, result.Anomalies[0].Seq)
}

func TestCompare_AnomaliesSortedBySeqThenCode(t *testing.T) {
	projected := []ProjectedEvent{
		{Seq: 2, Signature: "sigB", EventType: "claimed", ProjectionHash: "h2"},
		{Seq: 1, Signature: "sigA", EventType: "claimed", ProjectionHash: "h1"},
	}
	result := Compare(projected, nil, Lenient, nil)
	require.Len(t, result.Anomalies, 2)
	require.EqualValues(t, 1, result.Anomalies[0].Seq)
	require.EqualValues(t, 2, result.Anomalies[1].Seq)
}
