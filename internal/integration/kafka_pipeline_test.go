//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-report-etl/internal/adapter/kafka"
	"github.com/couchcryptid/flood-report-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/flood-report-etl/internal/config"
	"github.com/couchcryptid/flood-report-etl/internal/domain"
	"github.com/couchcryptid/flood-report-etl/internal/geojson"
	"github.com/couchcryptid/flood-report-etl/internal/observability"
	"github.com/couchcryptid/flood-report-etl/internal/pipeline"
)

const (
	testSourceTopic = "test-source"
	testSinkTopic   = "test-sink"
)

// summaryMessage holds a deserialized message read from the sink topic.
type summaryMessage struct {
	Summary domain.Summary
	Key     string
	Headers map[string]string
}

// readSummary reads a single message from the sink consumer and deserializes it.
func readSummary(ctx context.Context, t *testing.T, consumer *kafkago.Reader) summaryMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var sum domain.Summary
	require.NoError(t, json.Unmarshal(msg.Value, &sum), "unmarshal sink message")

	return summaryMessage{
		Summary: sum,
		Key:     string(msg.Key),
		Headers: headers,
	}
}

func jobMessage(t *testing.T, job domain.Job) kafkago.Message {
	t.Helper()
	payload, err := json.Marshal(job)
	require.NoError(t, err)
	return kafkago.Message{Key: []byte(job.ID), Value: payload}
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}
}

func sinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestKafkaReaderWriter verifies the adapter layer: a job message round-trips
// through kafka.Reader, a Runner, and kafka.Writer.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg := testConfig(broker, "test-reader")
	dataDir := stageData(t)

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })

	msg := jobMessage(t, domain.Job{ID: "job-1", ReportPath: "gfroad.rpt", SourcePath: "nodes.geojson", Classify: true})
	require.NoError(t, producer.WriteMessages(ctx, msg))

	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned and messages become available.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawEvent
	for {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(batch) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from source topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("job-1"), raw.Key)
	assert.Equal(t, msg.Value, raw.Value)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	runner := pipeline.NewRunner(pipeline.Options{DataDir: dataDir}, nil, discardLogger(), observability.NewMetricsForTesting())
	transformer := pipeline.NewTransformer(pipeline.AsJobRunner(runner), discardLogger())
	event, err := transformer.Transform(ctx, raw)
	require.NoError(t, err)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.LoadBatch(ctx, []domain.OutputEvent{event}))

	sm := readSummary(ctx, t, sinkConsumer(t, broker))
	assert.Equal(t, "job-1", sm.Key)
	assert.Equal(t, domain.StatusSucceeded, sm.Headers["status"])
	_, err = time.Parse(time.RFC3339, sm.Headers["processed_at"])
	assert.NoError(t, err, "processed_at should be valid RFC3339")

	assert.Equal(t, 4, sm.Summary.FloodMatched)
	assert.True(t, sm.Summary.Classified)
	assert.Equal(t, filepath.Join(dataDir, "nodes.geojson"), sm.Summary.OutputPath)
}

// TestPipelineEndToEnd wires the full pipeline with real Kafka and a run
// history, and verifies every valid job is answered while a poison message
// is skipped.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg := testConfig(broker, "test-pipeline")
	dataDir := stageData(t)

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })

	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		jobMessage(t, domain.Job{ID: "job-ok", ReportPath: "gfroad.rpt", SourcePath: "nodes.geojson", OutputPath: "enriched.geojson", Classify: true}),
		jobMessage(t, domain.Job{ID: "job-missing", ReportPath: "absent.rpt", SourcePath: "nodes.geojson"}),
	))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	runner := pipeline.NewRunner(pipeline.Options{DataDir: dataDir}, store, discardLogger(), metrics)
	transformer := pipeline.NewTransformer(pipeline.AsJobRunner(runner), discardLogger())
	p := pipeline.New(reader, transformer, writer, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	received := map[string]summaryMessage{}
	for len(received) < 2 {
		sm := readSummary(ctx, t, consumer)
		received[sm.Key] = sm
	}

	// The poison message produces nothing.
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err = consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no third message on sink topic")

	pipelineCancel()
	require.NoError(t, <-errCh)
	require.NoError(t, p.CheckReadiness(ctx))

	ok := received["job-ok"]
	assert.Equal(t, domain.StatusSucceeded, ok.Headers["status"])
	assert.Equal(t, 4, ok.Summary.ClassMatched)
	assert.Equal(t, []float64{0.001, 0.217, 0.982, 1.945}, ok.Summary.Breaks)

	missing := received["job-missing"]
	assert.Equal(t, domain.StatusFailed, missing.Headers["status"])
	assert.Contains(t, missing.Summary.Error, domain.ErrMissingInput.Error())

	// The enriched dataset landed next to the untouched source.
	fc, err := geojson.Load(filepath.Join(dataDir, "enriched.geojson"))
	require.NoError(t, err)
	var flooded int
	for _, f := range fc.Features {
		if _, has := f.Properties[domain.PropFloodVolume]; has {
			flooded++
		}
	}
	assert.Equal(t, 4, flooded)

	src, err := geojson.Load(filepath.Join(dataDir, "nodes.geojson"))
	require.NoError(t, err)
	for _, f := range src.Features {
		assert.NotContains(t, f.Properties, domain.PropFloodVolume)
	}

	runs, err := store.List(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	okRuns, err := store.List(ctx, "job-ok", 10)
	require.NoError(t, err)
	require.Len(t, okRuns, 1)
	assert.Equal(t, ok.Summary.RunID, okRuns[0].RunID)
}
