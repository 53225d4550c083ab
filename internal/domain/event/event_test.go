package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	at := time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC)
	e := New(ItemUpdated, "ORD_20250615_001", at, map[string]string{
		"itemId": "b3c1",
		"status": "Listo",
	})

	data := e.Encode()
	assert.JSONEq(t, `{
		"id": "`+e.ID+`",
		"type": "order.item_updated",
		"aggregateId": "ORD_20250615_001",
		"createdAt": "2025-06-15T12:30:00Z",
		"attrs": {"itemId": "b3c1", "status": "Listo"}
	}`, string(data))

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, e.Type, got.Type)
	assert.Equal(t, e.Attrs, got.Attrs)
	assert.True(t, at.Equal(got.CreatedAt))
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte(`{"id": 42}`))
	require.Error(t, err)
}
