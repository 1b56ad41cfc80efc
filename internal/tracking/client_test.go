package tracking

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	mlerrors "github.com/JoseManu96/ml.school/pkg/errors"
)

func capture(target *[]byte, response string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*target = body
		_, _ = w.Write([]byte(response))
	}
}

func TestStartRunCreatesMissingExperiment(t *testing.T) {
	t.Parallel()

	var experimentReq, runReq []byte

	mux := http.NewServeMux()
	mux.HandleFunc("/api/2.0/mlflow/experiments/get-by-name", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error_code": "RESOURCE_DOES_NOT_EXIST"}`))
	})
	mux.HandleFunc("/api/2.0/mlflow/experiments/create", capture(&experimentReq, `{"experiment_id": "7"}`))
	mux.HandleFunc("/api/2.0/mlflow/runs/create", capture(&runReq, `{"run": {"info": {"run_id": "abc123"}}}`))

	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "penguins")
	runID, err := client.StartRun(context.Background(), "run-42", map[string]string{"mlflow.source.name": "penguins"})
	require.NoError(t, err)
	require.Equal(t, "abc123", runID)

	require.Equal(t, "penguins", gjson.GetBytes(experimentReq, "name").String())
	require.Equal(t, "7", gjson.GetBytes(runReq, "experiment_id").String())
	require.Equal(t, "run-42", gjson.GetBytes(runReq, "run_name").String())
	require.Equal(t, "penguins", gjson.GetBytes(runReq, `tags.#(key=="mlflow.source.name").value`).String())
	require.Greater(t, gjson.GetBytes(runReq, "start_time").Int(), int64(0))
}

func TestStartRunReusesResolvedExperiment(t *testing.T) {
	t.Parallel()

	lookups := 0
	runs := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/api/2.0/mlflow/experiments/get-by-name", func(w http.ResponseWriter, r *http.Request) {
		lookups++
		_, _ = w.Write([]byte(`{"experiment": {"experiment_id": "3"}}`))
	})
	mux.HandleFunc("/api/2.0/mlflow/runs/create", func(w http.ResponseWriter, r *http.Request) {
		runs++
		_, _ = w.Write([]byte(`{"run": {"info": {"run_id": "first"}}}`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "penguins")
	_, err := client.StartRun(context.Background(), "one", nil)
	require.NoError(t, err)
	_, err = client.StartRun(context.Background(), "two", nil)
	require.NoError(t, err)

	require.Equal(t, 1, lookups)
	require.Equal(t, 2, runs)
}

func TestStartRunWrapsUnreachableServer(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NewServeMux())
	server.Close()

	client := NewClient(server.URL, "penguins")
	_, err := client.StartRun(context.Background(), "run-42", nil)
	require.Error(t, err)

	var initErr *mlerrors.RunInitError
	require.ErrorAs(t, err, &initErr)
	require.Equal(t, server.URL, initErr.Target)
}

func TestStartRunFailsWithoutRunID(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/2.0/mlflow/experiments/get-by-name", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"experiment": {"experiment_id": "3"}}`))
	})
	mux.HandleFunc("/api/2.0/mlflow/runs/create", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "penguins")
	_, err := client.StartRun(context.Background(), "run-42", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no run id")
}

func TestStartNestedTagsParentRun(t *testing.T) {
	t.Parallel()

	var runReq []byte

	mux := http.NewServeMux()
	mux.HandleFunc("/api/2.0/mlflow/experiments/get-by-name", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"experiment": {"experiment_id": "3"}}`))
	})
	mux.HandleFunc("/api/2.0/mlflow/runs/create", capture(&runReq, `{"run": {"info": {"run_id": "nested-1"}}}`))

	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "penguins")
	runID, err := client.StartNested(context.Background(), "parent-1", "cross-validation-fold-0")
	require.NoError(t, err)
	require.Equal(t, "nested-1", runID)

	require.Equal(t, "cross-validation-fold-0", gjson.GetBytes(runReq, "run_name").String())
	require.Equal(t, "parent-1", gjson.GetBytes(runReq, `tags.#(key=="mlflow.parentRunId").value`).String())
}

func TestLogMetricsSendsSortedBatch(t *testing.T) {
	t.Parallel()

	var batchReq []byte

	mux := http.NewServeMux()
	mux.HandleFunc("/api/2.0/mlflow/runs/log-batch", capture(&batchReq, `{}`))

	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "penguins")
	err := client.LogMetrics(context.Background(), "run-9", map[string]float64{
		"test_loss":     0.21,
		"test_accuracy": 0.93,
	})
	require.NoError(t, err)

	require.Equal(t, "run-9", gjson.GetBytes(batchReq, "run_id").String())
	require.Equal(t, "test_accuracy", gjson.GetBytes(batchReq, "metrics.0.key").String())
	require.InDelta(t, 0.93, gjson.GetBytes(batchReq, "metrics.0.value").Float(), 1e-9)
	require.Equal(t, "test_loss", gjson.GetBytes(batchReq, "metrics.1.key").String())
	require.Greater(t, gjson.GetBytes(batchReq, "metrics.0.timestamp").Int(), int64(0))
}

func TestLogParamsSendsSortedBatch(t *testing.T) {
	t.Parallel()

	var batchReq []byte

	mux := http.NewServeMux()
	mux.HandleFunc("/api/2.0/mlflow/runs/log-batch", capture(&batchReq, `{}`))

	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "penguins")
	err := client.LogParams(context.Background(), "run-9", map[string]string{
		"epochs":     "50",
		"batch_size": "32",
	})
	require.NoError(t, err)

	require.Equal(t, "run-9", gjson.GetBytes(batchReq, "run_id").String())
	require.Equal(t, "batch_size", gjson.GetBytes(batchReq, "params.0.key").String())
	require.Equal(t, "32", gjson.GetBytes(batchReq, "params.0.value").String())
	require.Equal(t, "epochs", gjson.GetBytes(batchReq, "params.1.key").String())
}

func TestEndRunReportsStatus(t *testing.T) {
	t.Parallel()

	var updateReq []byte

	mux := http.NewServeMux()
	mux.HandleFunc("/api/2.0/mlflow/runs/update", capture(&updateReq, `{}`))

	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "penguins")
	require.NoError(t, client.EndRun(context.Background(), "run-9", RunFailed))

	require.Equal(t, "run-9", gjson.GetBytes(updateReq, "run_id").String())
	require.Equal(t, "FAILED", gjson.GetBytes(updateReq, "status").String())
	require.Greater(t, gjson.GetBytes(updateReq, "end_time").Int(), int64(0))
}

func TestServerErrorSurfacesBody(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/2.0/mlflow/runs/log-batch", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("storage unavailable"))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "penguins")
	err := client.LogMetrics(context.Background(), "run-9", map[string]float64{"test_accuracy": 0.9})
	require.Error(t, err)
	require.Contains(t, err.Error(), "log-batch")
	require.Contains(t, err.Error(), "storage unavailable")
}
