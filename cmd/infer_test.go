package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claimant-intake/internal/headers"
	"github.com/sells-group/claimant-intake/internal/model"
)

func TestRunInfer(t *testing.T) {
	useTestConfig(t)
	file := writeFile(t, "claims.csv", "Full Name,Email Address\nJane Doe,jane@x.com\nBob Stone,bob@x.com\n")
	var out bytes.Buffer

	err := runInfer(context.Background(), headers.NewEngine(nil, 0), file, 0.5, &out)
	require.NoError(t, err)

	var res inferOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, []string{"Email Address", "Full Name"}, res.Headers)
	assert.Equal(t, model.FieldEmail, res.Mapping["Email Address"])
	assert.Equal(t, model.FieldName, res.Mapping["Full Name"])
}

func TestRunInfer_EmptyFile(t *testing.T) {
	useTestConfig(t)
	file := writeFile(t, "empty.csv", "")

	err := runInfer(context.Background(), headers.NewEngine(nil, 0), file, 0.5, &bytes.Buffer{})
	assert.Error(t, err)
}
