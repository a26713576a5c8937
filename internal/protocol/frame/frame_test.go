package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_RequestAll(t *testing.T) {
	got, err := Encode(33, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x3C, 33, 0, 0, 0x3C ^ 33}, got)
}

func TestEncode_WriteOneByte(t *testing.T) {
	got, err := Encode(34, 0, []byte{1})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x3C, 34, 0, 1, 1, 0x3C ^ 34 ^ 0 ^ 1 ^ 1}, got)
}

func TestEncode_PayloadTooLarge(t *testing.T) {
	_, err := Encode(1, 2, make([]byte, MaxPayload+1))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	msg, err := Encode(1, 2, make([]byte, MaxPayload))
	require.NoError(t, err)
	assert.Len(t, msg, MaxFrameSize)
}

func TestRoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 2, 17, 128, 254, 255} {
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(i*7 + size)
		}

		msg, err := Encode(byte(size), byte(255-size), payload)
		require.NoError(t, err)
		assert.Len(t, msg, Overhead+size)
		assert.Equal(t, byte(0), Checksum(msg), "xor over a full frame folds to zero")

		cmd, n, err := Decode(msg)
		require.NoError(t, err, "size=%d", size)
		assert.Equal(t, len(msg), n)
		assert.Equal(t, byte(size), cmd.Op)
		assert.Equal(t, byte(255-size), cmd.Target)
		assert.True(t, bytes.Equal(payload, cmd.Payload), "size=%d", size)
	}
}

func TestDecode_PayloadIsCopied(t *testing.T) {
	msg, err := Encode(35, 1, []byte{9, 9})
	require.NoError(t, err)

	cmd, _, err := Decode(msg)
	require.NoError(t, err)
	msg[HeaderSize] = 0
	assert.Equal(t, []byte{9, 9}, cmd.Payload)
}

func TestDecode_Incomplete(t *testing.T) {
	msg, err := Encode(34, 3, []byte{1, 2, 3})
	require.NoError(t, err)

	for i := 0; i < len(msg); i++ {
		_, n, err := Decode(msg[:i])
		assert.ErrorIs(t, err, ErrIncomplete, "prefix %d", i)
		assert.Zero(t, n)
	}
}

func TestDecode_BadStart(t *testing.T) {
	_, _, err := Decode([]byte{0x3D, 33, 0, 0, 0x3D ^ 33})
	assert.ErrorIs(t, err, ErrBadStart)
}

func TestDecode_TrailingBytesIgnored(t *testing.T) {
	msg, err := Encode(33, 0, nil)
	require.NoError(t, err)

	cmd, n, err := Decode(append(msg, 0xAA, 0xBB))
	require.NoError(t, err)
	assert.Equal(t, len(msg), n)
	assert.Equal(t, byte(33), cmd.Op)
}

func TestDecode_ChecksumSensitivity(t *testing.T) {
	msg, err := Encode(34, 7, []byte{0x10, 0x20, 0x30})
	require.NoError(t, err)

	// The start byte and the length byte change framing rather than the checksum,
	// so only op, target, payload and checksum bits are flipped here.
	for i := 1; i < len(msg); i++ {
		if i == 3 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			corrupt := append([]byte(nil), msg...)
			corrupt[i] ^= 1 << bit

			_, _, err := Decode(corrupt)
			assert.ErrorIs(t, err, ErrChecksumMismatch, "byte %d bit %d", i, bit)
		}
	}
}

func TestDecode_LengthBitFlip(t *testing.T) {
	msg, err := Encode(34, 7, []byte{0x10, 0x20, 0x30})
	require.NoError(t, err)

	for bit := 0; bit < 8; bit++ {
		corrupt := append([]byte(nil), msg...)
		corrupt[3] ^= 1 << bit

		_, _, err := Decode(corrupt)
		assert.Error(t, err, "bit %d", bit)
	}
}

func TestScan_ResyncOverSpuriousStart(t *testing.T) {
	valid, err := Encode(35, 2, []byte{42})
	require.NoError(t, err)

	// garbage with a stray start marker whose length byte points past the valid frame
	stream := append([]byte{0x01, 0x3C, 0x02, 0x10}, valid...)

	cmd, consumed, err := Scan(stream)
	require.NoError(t, err)
	assert.Equal(t, len(stream), consumed)
	assert.Equal(t, byte(35), cmd.Op)
	assert.Equal(t, byte(2), cmd.Target)
	assert.Equal(t, []byte{42}, cmd.Payload)
}

func TestScan_SkipsChecksumFailure(t *testing.T) {
	bad, err := Encode(33, 0, nil)
	require.NoError(t, err)
	bad[len(bad)-1] ^= 0xFF

	good, err := Encode(34, 1, []byte{5})
	require.NoError(t, err)

	stream := append(bad, good...)
	cmd, consumed, err := Scan(stream)
	require.NoError(t, err)
	assert.Equal(t, len(stream), consumed)
	assert.Equal(t, byte(34), cmd.Op)
}

func TestScan_KeepsPartialFrame(t *testing.T) {
	good, err := Encode(34, 1, []byte{5, 6})
	require.NoError(t, err)

	stream := append([]byte{0xFF, 0xFE}, good[:4]...)
	_, consumed, err := Scan(stream)
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, 2, consumed)
}

func TestScan_DiscardsGarbage(t *testing.T) {
	_, consumed, err := Scan([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, 3, consumed)

	_, consumed, err = Scan(nil)
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Zero(t, consumed)
}
