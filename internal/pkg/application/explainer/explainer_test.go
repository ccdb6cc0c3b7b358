package explainer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/diwise/iot-sensor-analytics/pkg/types"
	"github.com/matryer/is"
)

func TestExplainAnomalyPostsModelOutput(t *testing.T) {
	is := is.New(t)

	var gotPath string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		json.Unmarshal(b, &gotBody)
		w.Write([]byte(`{"summary":"sensor drift"}`))
	}))
	defer server.Close()

	score := 0.9
	c := NewWithURL(server.URL)

	explanation, err := c.ExplainAnomaly(context.Background(), types.Prediction{
		ID:             1,
		SensorID:       7,
		PredictedValue: 42.0,
		AnomalyScore:   &score,
	})
	is.NoErr(err)
	is.Equal(string(explanation), `{"summary":"sensor drift"}`)

	is.Equal(gotPath, "/explain/anomaly")

	modelOutput := gotBody["model_output"].(map[string]any)
	is.Equal(modelOutput["observed_value"], 42.0)
	is.Equal(modelOutput["anomaly_score"], 0.9)
}

func TestExplainAnomalyAcceptsAnySuccessStatus(t *testing.T) {
	is := is.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"summary":"queued"}`))
	}))
	defer server.Close()

	explanation, err := NewWithURL(server.URL).ExplainAnomaly(context.Background(), types.Prediction{})
	is.NoErr(err)
	is.Equal(string(explanation), `{"summary":"queued"}`)
}

func TestExplainAnomalyRejectsErrorStatus(t *testing.T) {
	is := is.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewWithURL(server.URL).ExplainAnomaly(context.Background(), types.Prediction{})
	is.True(err != nil)
}

func TestExplainAnomalyRejectsNonJSONBody(t *testing.T) {
	is := is.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	_, err := NewWithURL(server.URL).ExplainAnomaly(context.Background(), types.Prediction{})
	is.True(err != nil)
}
