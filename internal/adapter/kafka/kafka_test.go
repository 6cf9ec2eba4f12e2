package kafka

import (
	"testing"
	"time"

	"github.com/couchcryptid/forecast-sync/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapMessageToNotification_JSON(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("key-1"),
		Value:     []byte(`{"path":"forecasts/2024/seaice_20240301.nc","name":"seaice_20240301.nc"}`),
		Topic:     "forecast-files",
		Partition: 2,
		Offset:    42,
		Time:      now,
	}

	n, err := mapMessageToNotification(msg)
	require.NoError(t, err)

	assert.Equal(t, "forecasts/2024/seaice_20240301.nc", n.Path)
	assert.Equal(t, "seaice_20240301.nc", n.Name)
	assert.Equal(t, []byte("key-1"), n.Key)
	assert.Equal(t, "forecast-files", n.Topic)
	assert.Equal(t, 2, n.Partition)
	assert.Equal(t, int64(42), n.Offset)
	assert.Equal(t, now, n.Timestamp)
	assert.Nil(t, n.Commit)
}

func TestMapMessageToNotification_PlainPath(t *testing.T) {
	n, err := mapMessageToNotification(kafkago.Message{Value: []byte(" /data/in/forecast.nc\n")})
	require.NoError(t, err)

	assert.Equal(t, "/data/in/forecast.nc", n.Path)
	assert.Equal(t, "forecast.nc", n.Name)
}

func TestMapMessageToNotification_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty":        "",
		"bad json":     `{"path":`,
		"missing path": `{"name":"x.nc"}`,
	}
	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := mapMessageToNotification(kafkago.Message{Value: []byte(value)})
			require.Error(t, err)
		})
	}
}

func TestSerializeToMessage(t *testing.T) {
	done := time.Date(2024, 3, 2, 6, 30, 0, 0, time.UTC)
	report := &domain.SyncReport{
		RunID:       "run-1",
		File:        "seaice_20240301.nc",
		Predictions: domain.WriteCounts{Submitted: 10, Inserted: 7, Skipped: 3, Chunks: 1},
		LatestDate:  "2024-03-01",
		LatestRows:  7,
		CompletedAt: done,
	}

	msg, err := serializeToMessage(report)
	require.NoError(t, err)

	assert.Equal(t, []byte("run-1"), msg.Key)
	assert.Contains(t, string(msg.Value), `"latest_date":"2024-03-01"`)
	assert.Contains(t, string(msg.Value), `"predictions":{"submitted":10,"inserted":7,"skipped":3,"chunks":1}`)
	require.Len(t, msg.Headers, 4)
	assert.Equal(t, "file", msg.Headers[0].Key)
	assert.Equal(t, []byte("seaice_20240301.nc"), msg.Headers[0].Value)
	assert.Equal(t, []byte("7"), msg.Headers[2].Value)
	assert.Equal(t, []byte(done.Format(time.RFC3339)), msg.Headers[3].Value)
}
