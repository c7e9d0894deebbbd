package main

import (
	"bytes"
	"math/rand/v2"
	"testing"
	"time"

	"Go2NetPulse/internal/engine/protocol"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_LabelsMatchClassifier(t *testing.T) {
	var buf bytes.Buffer
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	want, err := generate(&buf, 2000, rand.New(rand.NewPCG(7, 7)), start)
	require.NoError(t, err)

	r, err := pcapgo.NewReader(&buf)
	require.NoError(t, err)

	got := make(map[string]int)
	n := 0
	for {
		data, ci, err := r.ReadPacketData()
		if err != nil {
			break
		}
		assert.Equal(t, start.Add(time.Duration(n)*time.Millisecond), ci.Timestamp.UTC())
		n++

		pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
		label, err := protocol.Classify(protocol.ParsePacket(pkt))
		if err != nil {
			got[""]++
			continue
		}
		got[string(label)]++
	}

	assert.Equal(t, 2000, n)
	assert.Equal(t, want, got)
	assert.Greater(t, got["HTTPS"], got["FTP"])
}
