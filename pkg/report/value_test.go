package report_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfwatch/perfwatch/pkg/report"
)

func TestValue_JSON(t *testing.T) {
	present, err := json.Marshal(report.ValueOf(3.5))
	require.NoError(t, err)
	assert.Equal(t, "3.5", string(present))

	missing, err := json.Marshal(report.Value{})
	require.NoError(t, err)
	assert.Equal(t, `"-"`, string(missing))

	var v report.Value
	require.NoError(t, json.Unmarshal([]byte("2.25"), &v))
	require.True(t, v.Valid())
	assert.InDelta(t, 2.25, v.Float64(), 1e-9)

	require.NoError(t, json.Unmarshal([]byte(`"-"`), &v))
	assert.False(t, v.Valid())

	assert.Error(t, json.Unmarshal([]byte(`"bogus"`), &v))
}

func TestValue_String(t *testing.T) {
	assert.Equal(t, "-", report.Value{}.String())
	assert.Equal(t, "15.46", report.ValueOf(15.46).String())
}
