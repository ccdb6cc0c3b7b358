package ingest

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/matryer/is"
)

const readingJSON string = `{
	"v": 1,
	"value": 21.5,
	"timestamp": "2026-08-20T10:00:00Z",
	"type": "temperature",
	"msgId": "m-1",
	"metadata": {
		"deviceUuid": "Dev-A",
		"sensorUuid": "Sen-B",
		"sequence": 7
	}
}`

const snakeCaseReadingJSON string = `{
	"v": 1,
	"sensor_id": 42,
	"value": 19.0,
	"msg_id": "m-2",
	"metadata": {
		"device_uuid": "dev-a",
		"sensor_uuid": "sen-b",
		"sensor_type": "humidity"
	}
}`

func TestParseReading(t *testing.T) {
	is := is.New(t)

	r, err := parseReading([]byte(readingJSON))
	is.NoErr(err)
	is.Equal(r.DeviceUUID, "Dev-A")
	is.Equal(r.SensorUUID, "Sen-B")
	is.Equal(r.SensorType, "temperature")
	is.Equal(r.Value, 21.5)
	is.Equal(*r.Sequence, uint64(7))
	is.Equal(r.MsgID, "m-1")
	is.True(r.DeviceTS != nil)
}

func TestParseReadingAcceptsSnakeCaseKeys(t *testing.T) {
	is := is.New(t)

	r, err := parseReading([]byte(snakeCaseReadingJSON))
	is.NoErr(err)
	is.Equal(r.SensorID, int64(42))
	is.Equal(r.DeviceUUID, "dev-a")
	is.Equal(r.SensorUUID, "sen-b")
	is.Equal(r.SensorType, "humidity")
	is.Equal(r.MsgID, "m-2")
	is.Equal(r.DeviceTS, (*time.Time)(nil))
}

func TestParseReadingRejectsMissingValue(t *testing.T) {
	is := is.New(t)

	_, err := parseReading([]byte(`{"v":1,"metadata":{}}`))
	is.True(err != nil)
}

func TestParseReadingRejectsAbsurdMagnitude(t *testing.T) {
	is := is.New(t)

	_, err := parseReading([]byte(`{"v":1,"value":1e15,"metadata":{}}`))
	is.True(err != nil)
}

func TestHandlerEnqueuesWhenAsyncEnabled(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	store := &storeMock{}
	p, _, _ := newTestPipeline(store, &messaging.MsgContextMock{})

	processor := NewAsyncProcessor(p, Config{AsyncEnabled: true, QueueSize: 10, NumWorkers: 1})

	handler := NewSensorReadingHandler(Config{AsyncEnabled: true}, p, processor)
	handler(ctx, &messaging.IncomingTopicMessageMock{
		BodyFunc: func() []byte { return []byte(readingJSON) },
	}, slog.Default())

	is.Equal(processor.QueueStats().CurrentSize, 1)
	is.Equal(store.addCalls, 0)
}

func TestHandlerProcessesInlineWhenAsyncDisabled(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	store := &storeMock{}
	p, _, _ := newTestPipeline(store, &messaging.MsgContextMock{})

	body := `{"v":1,"value":21.5,"type":"temperature","metadata":{"deviceUuid":"known-device","sensorUuid":"s-1"}}`

	handler := NewSensorReadingHandler(Config{AsyncEnabled: false}, p, nil)
	handler(ctx, &messaging.IncomingTopicMessageMock{
		BodyFunc: func() []byte { return []byte(body) },
	}, slog.Default())

	is.Equal(store.addCalls, 1)
}
