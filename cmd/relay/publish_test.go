package main

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/config"
	"relay/internal/relay"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()

	return config.Config{
		LogLevel:       "error",
		Broker:         config.BrokerFault,
		Topic:          "orders",
		PublishTimeout: time.Second,
		BatchSize:      2,
		Sink:           config.SinkWriter,
		SuccessOut:     filepath.Join(dir, "success.jsonl"),
		FailureOut:     filepath.Join(dir, "failed.jsonl"),
	}
}

func lines(t *testing.T, path string) []string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		out = append(out, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestRunPublish_RoutesByOutcome(t *testing.T) {
	cfg := testConfig(t)
	in := strings.NewReader(`{"id":"a","value":"ok"}
{"id":"b","value":"fail"}
{"id":"c","value":"futurefail"}
{"id":"d","value":"ok"}
`)

	err := runPublish(context.Background(), cfg, in)
	require.ErrorContains(t, err, "2 of 4 records failed")

	success := lines(t, cfg.SuccessOut)
	require.Len(t, success, 2)
	assert.Contains(t, success[0], `"token":"a"`)
	assert.Contains(t, success[1], `"token":"d"`)

	failed := lines(t, cfg.FailureOut)
	require.Len(t, failed, 2)
	assert.Contains(t, failed[0], `"outcome":"submission_failed"`)
	assert.Contains(t, failed[1], `"outcome":"confirmation_failed"`)
}

func TestRunPublish_FailureOutputReplays(t *testing.T) {
	cfg := testConfig(t)

	err := runPublish(context.Background(), cfg, strings.NewReader(`{"id":"b","topic":"users","partition":1,"key":"customer-42","value":"fail","headers":{"h":"v"}}`+"\n"))
	require.Error(t, err)

	f, err := os.Open(cfg.FailureOut)
	require.NoError(t, err)
	defer f.Close()

	var replayed []relay.Record
	err = batches(f, 10, "orders", func(rs []relay.Record) error {
		replayed = append(replayed, rs...)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, replayed, 1)
	assert.Equal(t, "b", replayed[0].ID)
	assert.Equal(t, "users", replayed[0].Topic)
	assert.Equal(t, []byte("fail"), replayed[0].Value)
	assert.Equal(t, []byte("customer-42"), replayed[0].Key)
	assert.Equal(t, map[string]string{"h": "v"}, replayed[0].Headers)
	require.NotNil(t, replayed[0].Partition)
	assert.Equal(t, int32(1), *replayed[0].Partition)
}

func TestRunPublish_AllDelivered(t *testing.T) {
	cfg := testConfig(t)
	cfg.Breaker.Enabled = true
	cfg.Breaker.FailureThreshold = 5

	err := runPublish(context.Background(), cfg, strings.NewReader(`{"value":"1"}
{"value":"2"}
{"value":"3"}
`))
	require.NoError(t, err)
	assert.Len(t, lines(t, cfg.SuccessOut), 3)
	assert.Empty(t, lines(t, cfg.FailureOut))
}

func TestPublishCmd_FlushesProfileOnFailure(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.jsonl")
	profile := filepath.Join(dir, "cpu.pprof")
	require.NoError(t, os.WriteFile(input, []byte(`{"id":"a","value":"fail"}`+"\n"), 0o644))

	t.Setenv("BROKER", config.BrokerFault)
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("SUCCESS_OUT", filepath.Join(dir, "success.jsonl"))
	t.Setenv("FAILURE_OUT", filepath.Join(dir, "failed.jsonl"))

	cmd := newRootCmd()
	cmd.SetArgs([]string{"publish", "--input", input, "--cpuprofile", profile})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	require.ErrorContains(t, cmd.Execute(), "1 of 1 records failed")

	info, err := os.Stat(profile)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
