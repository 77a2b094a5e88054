package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMetadata(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model_metadata.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadMetadata(t *testing.T) {
	path := writeMetadata(t, `{
		"input_shape": [1, 96, 96, 3],
		"output_shape": [1, 2],
		"classes": ["Fake", "Real"],
		"image_size": 96
	}`)

	meta, err := LoadMetadata(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"Fake", "Real"}, meta.Classes)
	assert.Equal(t, "input", meta.InputName)
	assert.Equal(t, "output", meta.OutputName)
	assert.Equal(t, 96*96*3, meta.InputSize())
	assert.Equal(t, 2, meta.OutputSize())
}

func TestLoadMetadata_CustomTensorNames(t *testing.T) {
	path := writeMetadata(t, `{
		"input_shape": [1, 96, 96, 3],
		"output_shape": [1, 2],
		"classes": ["Fake", "Real"],
		"image_size": 96,
		"input_name": "input_layer",
		"output_name": "dense_1"
	}`)

	meta, err := LoadMetadata(path)
	require.NoError(t, err)

	assert.Equal(t, "input_layer", meta.InputName)
	assert.Equal(t, "dense_1", meta.OutputName)
}

func TestLoadMetadata_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `input_shape: [1]`},
		{name: "channels first", body: `{"input_shape":[1,3,96,96],"output_shape":[1,2],"classes":["Fake","Real"],"image_size":96}`},
		{name: "size mismatch", body: `{"input_shape":[1,224,224,3],"output_shape":[1,2],"classes":["Fake","Real"],"image_size":96}`},
		{name: "batch of two", body: `{"input_shape":[2,96,96,3],"output_shape":[2,2],"classes":["Fake","Real"],"image_size":96}`},
		{name: "no classes", body: `{"input_shape":[1,96,96,3],"output_shape":[1,2],"classes":[],"image_size":96}`},
		{name: "output mismatch", body: `{"input_shape":[1,96,96,3],"output_shape":[1,3],"classes":["Fake","Real"],"image_size":96}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadMetadata(writeMetadata(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMetadata_MissingFile(t *testing.T) {
	_, err := LoadMetadata(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
