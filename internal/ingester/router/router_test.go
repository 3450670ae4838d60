package router

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridstats/gridstats/internal/ingester/metrics"
)

const groupBody = `<msgGrp>
	<msg><subject>BMRA.BM.E_ABERDARE.FPN</subject><row><TS>2022-10-09 12:00:00:GMT</TS><VP>10.0</VP></row></msg>
	<msg><subject>BMRA.BM.E_OTHER.FPN</subject><row><TS>2022-10-09 12:00:00:GMT</TS><VP>20.0</VP></row></msg>
	<msg><subject>BMRA.BM.E_THIRD.FPN</subject><row><TS>2022-10-09 12:00:00:GMT</TS><VP>30.0</VP></row></msg>
</msgGrp>`

const bareBody = `<msg><subject>BMRA.SYSTEM.FREQ</subject>` +
	`<row><TS>2022-10-09 12:00:00:GMT</TS><SF>49.95</SF></row>` +
	`<row><TS>2022-10-09 12:00:15:GMT</TS><SF>49.97</SF></row></msg>`

func testRouter() *Router {
	return New(nil, "bmrsTopic", metrics.Get())
}

func TestGroupFlattening(t *testing.T) {
	r := testRouter()
	var subjects []string
	r.Register("FPN", func(ctx context.Context, msg *Message) error {
		subjects = append(subjects, msg.Subject)
		return nil
	})

	r.dispatch(context.Background(), &Envelope{Type: "FPN", Body: []byte(groupBody)})

	// One invocation per contained message, in document order
	assert.Equal(t, []string{"BMRA.BM.E_ABERDARE.FPN", "BMRA.BM.E_OTHER.FPN", "BMRA.BM.E_THIRD.FPN"}, subjects)
}

func TestBareEnvelope(t *testing.T) {
	r := testRouter()
	invocations := 0
	r.Register("FREQ", func(ctx context.Context, msg *Message) error {
		invocations++
		assert.Len(t, msg.Rows, 2)
		assert.Equal(t, "49.95", msg.Rows[0].SF)
		return nil
	})

	r.dispatch(context.Background(), &Envelope{Type: "FREQ", Body: []byte(bareBody)})
	assert.Equal(t, 1, invocations)
}

func TestUnknownTypeDropped(t *testing.T) {
	r := testRouter()
	invocations := 0
	r.Register("FREQ", func(ctx context.Context, msg *Message) error {
		invocations++
		return nil
	})

	r.dispatch(context.Background(), &Envelope{Type: "BOALF", Body: []byte(bareBody)})
	assert.Equal(t, 0, invocations)
}

func TestLastRegistrationWins(t *testing.T) {
	r := testRouter()
	var calls []string
	r.Register("PN", func(ctx context.Context, msg *Message) error {
		calls = append(calls, "old")
		return nil
	})
	r.Register("PN", func(ctx context.Context, msg *Message) error {
		calls = append(calls, "new")
		return nil
	})

	r.dispatch(context.Background(), &Envelope{Type: "PN", Body: []byte(bareBody)})
	assert.Equal(t, []string{"new"}, calls)
}

func TestHandlerFailureIsolated(t *testing.T) {
	r := testRouter()
	r.Register("FREQ", func(ctx context.Context, msg *Message) error {
		return errors.New("db unavailable")
	})
	invocations := 0
	r.Register("FPN", func(ctx context.Context, msg *Message) error {
		invocations++
		return nil
	})

	// A failing handler must not affect subsequent envelopes
	r.dispatch(context.Background(), &Envelope{Type: "FREQ", Body: []byte(bareBody)})
	r.dispatch(context.Background(), &Envelope{Type: "FPN", Body: []byte(groupBody)})
	assert.Equal(t, 3, invocations)
}

func TestMalformedBody(t *testing.T) {
	r := testRouter()
	invocations := 0
	r.Register("FREQ", func(ctx context.Context, msg *Message) error {
		invocations++
		return nil
	})

	r.dispatch(context.Background(), &Envelope{Type: "FREQ", Body: []byte("<msg><row>")})
	r.dispatch(context.Background(), &Envelope{Type: "FREQ", Body: []byte("not xml at all")})
	assert.Equal(t, 0, invocations)
}

func TestParseEnvelopeGroup(t *testing.T) {
	messages, err := parseEnvelope([]byte(groupBody))
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "BMRA.BM.E_ABERDARE.FPN", messages[0].Subject)
	require.Len(t, messages[0].Rows, 1)
	assert.Equal(t, "10.0", messages[0].Rows[0].VP)
}

func TestUnitFromSubject(t *testing.T) {
	unit, ok := UnitFromSubject("BMRA.DYNAMIC.T_MEDP-1.SEL")
	assert.True(t, ok)
	assert.Equal(t, "T_MEDP-1", unit)

	unit, ok = UnitFromSubject("BMRA.DYNAMIC.T_PEMB-31.RDRE")
	assert.True(t, ok)
	assert.Equal(t, "T_PEMB-31", unit)

	unit, ok = UnitFromSubject("BMRA.BM.E_ABERDARE.FPN")
	assert.True(t, ok)
	assert.Equal(t, "E_ABERDARE", unit)

	_, ok = UnitFromSubject("BMRA.SYSTEM.FREQ")
	assert.False(t, ok)

	_, ok = UnitFromSubject("FREQ")
	assert.False(t, ok)
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("2022-10-09 12:35:00:GMT")
	require.NoError(t, err)
	assert.Equal(t, "2022-10-09T12:35:00Z", ts.Format("2006-01-02T15:04:05Z07:00"))

	_, err = ParseTimestamp("nonsense")
	assert.Error(t, err)
}
