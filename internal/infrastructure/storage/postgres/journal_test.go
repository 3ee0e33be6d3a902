package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisitJournal_EncodeThreshold(t *testing.T) {
	j, err := NewVisitJournal(nil, nil)
	require.NoError(t, err)
	j.compressThreshold = 64

	tests := []struct {
		name    string
		payload []byte
		algo    CompressionAlgo
	}{
		{name: "small stays inline", payload: []byte(`{"number":"RV-2026-00001"}`), algo: CompressionNone},
		{name: "large is compressed", payload: []byte(`{"live":"` + strings.Repeat("A", 4096) + `"}`), algo: CompressionZstd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e JournalEntry
			j.encode(&e, tt.payload)
			assert.Equal(t, tt.algo, e.CompressionAlgo)

			if tt.algo == CompressionZstd {
				assert.Nil(t, e.Payload)
				assert.Less(t, len(e.PayloadCompressed), len(tt.payload))
			}

			require.NoError(t, j.decode(&e))
			assert.Equal(t, string(tt.payload), string(e.Payload))
			assert.Nil(t, e.PayloadCompressed)
		})
	}
}

func TestVisitJournal_DecodeCorrupt(t *testing.T) {
	j, err := NewVisitJournal(nil, nil)
	require.NoError(t, err)

	e := JournalEntry{Number: "RV-1", CompressionAlgo: CompressionZstd, PayloadCompressed: []byte("not zstd")}
	assert.Error(t, j.decode(&e))
}
