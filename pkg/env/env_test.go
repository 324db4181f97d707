package env

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSlice(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " kafka-1:9092, ,kafka-2:9092 ")
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, GetSlice("KAFKA_BROKERS", nil))

	t.Setenv("KAFKA_BROKERS", "")
	assert.Equal(t, []string{"localhost:9092"}, GetSlice("KAFKA_BROKERS", []string{"localhost:9092"}))
}

func TestGetDuration_FallsBackOnGarbage(t *testing.T) {
	t.Setenv("CHAT_READ_DEBOUNCE", "soon")
	assert.Equal(t, 500*time.Millisecond, GetDuration("CHAT_READ_DEBOUNCE", 500*time.Millisecond))

	t.Setenv("CHAT_READ_DEBOUNCE", "250ms")
	assert.Equal(t, 250*time.Millisecond, GetDuration("CHAT_READ_DEBOUNCE", 500*time.Millisecond))
}

func TestGetStringFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte("s3cret\n"), 0o600))

	t.Setenv("JWT_SECRET_FILE", path)
	t.Setenv("JWT_SECRET", "from-env")
	assert.Equal(t, "s3cret", GetStringFromFile("JWT_SECRET", ""))

	t.Setenv("JWT_SECRET_FILE", filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, "from-env", GetStringFromFile("JWT_SECRET", ""))
}
