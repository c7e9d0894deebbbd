package probe

import (
	"errors"
	"testing"
	"time"

	"Go2NetPulse/internal/logging"
	"Go2NetPulse/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
	drained  bool
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func sampleRecord() model.PacketRecord {
	return model.PacketRecord{
		Timestamp:  time.Date(2024, 3, 9, 14, 2, 11, 123000000, time.UTC),
		SourceIP:   "10.0.0.5",
		DestIP:     "93.184.216.34",
		SourcePort: 51234,
		DestPort:   443,
		Protocol:   "HTTPS",
		Size:       1514,
	}
}

func TestDecodeRecord_InverseOfEncode(t *testing.T) {
	data, err := EncodeRecord(sampleRecord())
	require.NoError(t, err)

	got, err := DecodeRecord(data)
	require.NoError(t, err)
	assert.True(t, sampleRecord().Timestamp.Equal(got.Timestamp))
	got.Timestamp = sampleRecord().Timestamp
	assert.Equal(t, sampleRecord(), got)
}

func TestDecodeRecord_RejectsGarbage(t *testing.T) {
	_, err := DecodeRecord([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}

func TestPublisher_PublishesToSubject(t *testing.T) {
	fc := &fakeConn{}
	p := &Publisher{nc: fc, subject: "gons.packets.records", log: logging.For("test")}

	require.NoError(t, p.Publish(sampleRecord()))
	require.Len(t, fc.payloads, 1)
	assert.Equal(t, "gons.packets.records", fc.subjects[0])

	got, err := DecodeRecord(fc.payloads[0])
	require.NoError(t, err)
	assert.Equal(t, "HTTPS", got.Protocol)

	p.Close()
	assert.True(t, fc.drained)
}

func TestPublisher_PropagatesError(t *testing.T) {
	p := &Publisher{nc: &fakeConn{err: errors.New("nats: connection closed")}, subject: "s", log: logging.For("test")}
	assert.Error(t, p.Publish(sampleRecord()))
}
