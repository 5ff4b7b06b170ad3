package trace

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingKeepsRecent(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		r.Event("s", "OP", uint8(i))
	}
	evs := r.Events()
	require.Len(t, evs, 3)
	assert.Equal(t, uint8(2), evs[0].Summary)
	assert.Equal(t, uint8(4), evs[2].Summary)
	// Sequence numbers keep counting past evictions.
	assert.Equal(t, uint64(5), evs[2].Seq)
	assert.Equal(t, 3, r.Len())
}

func TestRingSessionsIdempotent(t *testing.T) {
	r := NewRing(8)
	r.RegisterSession("a")
	r.RegisterSession("a")
	r.RegisterSession("b")
	assert.ElementsMatch(t, []string{"a", "b"}, r.Sessions())
}

func TestRingConcurrent(t *testing.T) {
	r := NewRing(128)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.Event("s", "OP", uint8(id))
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 128, r.Len())
}

func TestWriterEmitsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Event("sess", "ADD", 12)
	w.Event("sess", "HALT", 0)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	assert.Equal(t, "ADD", ev.Op)
	assert.Equal(t, uint8(12), ev.Summary)
	assert.Equal(t, uint64(1), ev.Seq)
}

func TestMultiFansOut(t *testing.T) {
	a, b := NewRing(8), NewRing(8)
	m := Multi{a, b}
	m.RegisterSession("s")
	m.Event("s", "NOP", 0)
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, []string{"s"}, a.Sessions())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	events := []Event{{Seq: 1, Session: "s", Op: "PUSH", Summary: 7}}
	require.NoError(t, WriteJSON(&buf, events))

	var back []Event
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, events, back)
}

func TestNopIsSilent(t *testing.T) {
	var s Sink = Nop{}
	s.RegisterSession("x")
	s.Event("x", "OP", 1)
}
