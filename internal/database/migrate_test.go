package database

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/psds-microservice/ticket-chat-service/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGooseLoggerWritesToServiceLogger(t *testing.T) {
	var buf bytes.Buffer
	l := gooseLogger{logger.NewWithWriter(&buf, "info", true, false)}

	l.Printf("OK   %s (%v)\n", "00001_init.sql", "1.2ms")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line), buf.String())
	assert.Equal(t, "OK   00001_init.sql (1.2ms)", line["msg"])
	assert.Equal(t, "goose", line["component"])
	assert.Equal(t, "INFO", line["level"])
}

func TestMigrateUpRejectsURLWithoutDatabase(t *testing.T) {
	var buf bytes.Buffer
	err := MigrateUp("postgres://u:p@localhost:5432/", logger.NewWithWriter(&buf, "info", true, false))
	assert.ErrorContains(t, err, "database name is empty")
	assert.Empty(t, buf.String())
}
