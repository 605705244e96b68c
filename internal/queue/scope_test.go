package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScopeUsesLocation(t *testing.T) {
	at := time.Date(2025, 1, 1, 20, 30, 0, 0, time.UTC)

	assert.Equal(t, "queue:doctor:doc-1:2025-01-01", NewScope("doc-1", at, nil).Key())

	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-02", NewScope("doc-1", at, kolkata).Date)
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope(" doc-9 ", "2025-02-03")
	require.NoError(t, err)
	assert.Equal(t, Scope{DoctorID: "doc-9", Date: "2025-02-03"}, s)

	_, err = ParseScope("doc-9", "03/02/2025")
	assert.Error(t, err)
	_, err = ParseScope("", "2025-02-03")
	assert.Error(t, err)
}
