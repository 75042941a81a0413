package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	cursor := Cursor{
		ID:        "7001",
		CreatedAt: "2024-06-01T12:00:00.000000000Z",
	}

	token, err := EncodeCursor(cursor)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, cursor.ID, decoded.ID)
	assert.Equal(t, cursor.CreatedAt, decoded.CreatedAt)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("not-base64!!")
	assert.Error(t, err)

	// Valid base64 that does not hold a cursor document.
	_, err = DecodeCursor("bm90LWpzb24=")
	assert.Error(t, err)
}
