package batchlog

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLogBatchWritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf)

	logger.LogBatch(context.Background(), "0004_migrate_flows", 2, 150, 10*time.Millisecond, nil)

	out := buf.String()
	assert.Contains(t, out, `"migration_id":"0004_migrate_flows"`)
	assert.Contains(t, out, `"batch_number":2`)
	assert.Contains(t, out, `"records_processed":150`)
}

func TestLogBatchRecordsError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf)

	logger.LogBatch(context.Background(), "0004_migrate_flows", 3, 0, time.Millisecond, errors.New("constraint violation"))

	out := buf.String()
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, "constraint violation")
}
