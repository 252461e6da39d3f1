package media

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/roulette/internal/core"
)

func TestCapture_NoMediaRequested(t *testing.T) {
	c := NewCapturer("")
	_, err := c.Capture(context.Background(), core.Constraints{})
	require.ErrorIs(t, err, ErrNoMedia)
}

func TestCapture_VideoOnlyDefault(t *testing.T) {
	c := NewCapturer("")
	s, err := c.Capture(context.Background(), core.Constraints{Video: true})
	require.NoError(t, err)
	defer s.Close()

	require.Len(t, s.Tracks, 1)
	assert.Equal(t, "video", s.Tracks[0].Kind().String())
	assert.Equal(t, s.ID, s.Tracks[0].StreamID())
}

func TestCapture_AudioAndVideo(t *testing.T) {
	c := NewCapturer("")
	s, err := c.Capture(context.Background(), core.Constraints{Video: true, Audio: true})
	require.NoError(t, err)

	require.Len(t, s.Tracks, 2)
	assert.Equal(t, "audio", s.Tracks[1].Kind().String())

	s.Close()
	s.Close()
}

func TestCapture_MissingFile(t *testing.T) {
	c := NewCapturer("/does/not/exist.ivf")
	_, err := c.Capture(context.Background(), core.Constraints{Video: true})
	require.Error(t, err)
}

func TestCapture_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCapturer("").Capture(ctx, core.Constraints{Video: true})
	require.ErrorIs(t, err, context.Canceled)
}

func TestPattern_KeyframeCadence(t *testing.T) {
	p := newPattern()
	first, err := p.next()
	require.NoError(t, err)
	assert.Equal(t, byte(0), first[0]&0x01)

	second, _ := p.next()
	assert.Equal(t, byte(1), second[0]&0x01)
}

func TestDrain_CountsUntilEOF(t *testing.T) {
	seqs := []uint16{10, 11, 14, 15}
	i := 0
	read := func() (*rtp.Packet, error) {
		if i == len(seqs) {
			return nil, io.EOF
		}
		pkt := &rtp.Packet{Header: rtp.Header{SequenceNumber: seqs[i]}, Payload: []byte{1, 2, 3}}
		i++
		return pkt, nil
	}

	st := drain(context.Background(), read, zerolog.Nop())
	assert.EqualValues(t, 4, st.Packets)
	assert.EqualValues(t, 12, st.Bytes)
	assert.EqualValues(t, 2, st.Lost)
	assert.EqualValues(t, 15, st.LastSeq)
	assert.False(t, st.Ended.Before(st.Started))
}

func TestDrain_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st := drain(ctx, func() (*rtp.Packet, error) { return nil, errors.New("unreachable") }, zerolog.Nop())
	assert.Zero(t, st.Packets)
}
