package explainer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/diwise/iot-sensor-analytics/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
)

const requestTimeout = time.Second

// Client talks to the anomaly explainer service. The short timeout is
// intentional, an explanation that arrives late is worth less than the
// batch pass it delays.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(ctx context.Context) *Client {
	return NewWithURL(env.GetVariableOrDefault(ctx, "AI_EXPLAINER_URL", "http://localhost:8003"))
}

func NewWithURL(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

type explainRequest struct {
	Context     string      `json:"context"`
	ModelOutput modelOutput `json:"model_output"`
}

type modelOutput struct {
	Metric        string     `json:"metric"`
	ObservedValue float64    `json:"observed_value"`
	ExpectedRange [2]float64 `json:"expected_range"`
	AnomalyScore  *float64   `json:"anomaly_score"`
	Model         string     `json:"model"`
	ModelVersion  string     `json:"model_version"`
}

// ExplainAnomaly posts the anomalous prediction and returns the raw JSON
// explanation body for storage.
func (c *Client) ExplainAnomaly(ctx context.Context, p types.Prediction) ([]byte, error) {
	body, err := json.Marshal(explainRequest{
		Context: fmt.Sprintf("sensor %d predicted anomalous value", p.SensorID),
		ModelOutput: modelOutput{
			Metric:        "predicted_value",
			ObservedValue: p.PredictedValue,
			ExpectedRange: [2]float64{p.PredictedValue - 1, p.PredictedValue + 1},
			AnomalyScore:  p.AnomalyScore,
			Model:         "baseline",
			ModelVersion:  "1",
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/explain/anomaly", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("explainer returned status %d", resp.StatusCode)
	}

	explanation, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if !json.Valid(explanation) {
		return nil, fmt.Errorf("explainer returned invalid json")
	}

	return explanation, nil
}
