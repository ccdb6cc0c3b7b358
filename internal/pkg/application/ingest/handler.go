package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/diwise/iot-sensor-analytics/pkg/types"
	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// maxAbsValue is a transport level sanity bound, values beyond it are
// garbage regardless of sensor type.
const maxAbsValue = 1e12

var ErrBadPayload = errors.New("malformed reading payload")

type incomingMetadata struct {
	DeviceUUID    string  `json:"deviceUuid"`
	DeviceUUIDAlt string  `json:"device_uuid"`
	SensorUUID    string  `json:"sensorUuid"`
	SensorUUIDAlt string  `json:"sensor_uuid"`
	SensorType    string  `json:"sensorType"`
	SensorTypeAlt string  `json:"sensor_type"`
	Sequence      *uint64 `json:"sequence"`
	DeviceID      *int64  `json:"deviceId"`
	DeviceIDAlt   *int64  `json:"device_id"`
}

type incomingReading struct {
	Version     int              `json:"v"`
	SensorID    *int64           `json:"sensorId"`
	SensorIDAlt *int64           `json:"sensor_id"`
	Value       *float64         `json:"value"`
	Timestamp   *time.Time       `json:"timestamp"`
	Type        string           `json:"type"`
	MsgID       string           `json:"msgId"`
	MsgIDAlt    string           `json:"msg_id"`
	Metadata    incomingMetadata `json:"metadata"`
}

// NewSensorReadingHandler returns the handler for the sensor reading topic.
// Depending on configuration a parsed reading is queued for the worker pool
// or run through the pipeline inline.
func NewSensorReadingHandler(cfg Config, pipeline *Pipeline, processor *AsyncProcessor) messaging.TopicMessageHandler {
	return func(ctx context.Context, itm messaging.IncomingTopicMessage, log *slog.Logger) {
		ctx = logging.NewContextWithLogger(ctx, log)

		r, err := parseReading(itm.Body())
		if err != nil {
			log.Warn("failed to parse sensor reading", "err", err.Error())
			return
		}

		if cfg.AsyncEnabled && processor != nil {
			if !processor.Enqueue(r) {
				log.Warn("reading refused by ingest queue", "msg_id", r.MsgID)
			}
			return
		}

		_ = pipeline.Process(ctx, r)
	}
}

func parseReading(body []byte) (types.Reading, error) {
	in := incomingReading{}

	err := json.Unmarshal(body, &in)
	if err != nil {
		return types.Reading{}, err
	}

	if in.Value == nil || math.Abs(*in.Value) >= maxAbsValue {
		return types.Reading{}, ErrBadPayload
	}

	r := types.Reading{
		DeviceUUID: lo.CoalesceOrEmpty(in.Metadata.DeviceUUID, in.Metadata.DeviceUUIDAlt),
		SensorUUID: lo.CoalesceOrEmpty(in.Metadata.SensorUUID, in.Metadata.SensorUUIDAlt),
		SensorType: lo.CoalesceOrEmpty(in.Metadata.SensorType, in.Metadata.SensorTypeAlt, in.Type),
		Value:      *in.Value,
		DeviceTS:   in.Timestamp,
		IngestedTS: time.Now().UTC(),
		Sequence:   in.Metadata.Sequence,
		MsgID:      lo.CoalesceOrEmpty(in.MsgID, in.MsgIDAlt, uuid.NewString()),
	}

	if sensorID := lo.CoalesceOrEmpty(in.SensorID, in.SensorIDAlt); sensorID != nil {
		r.SensorID = *sensorID
	}

	return r, nil
}
