package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// Metadata describes an exported classifier and sits next to the .onnx file.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	InputName   string   `json:"input_name,omitempty"`
	OutputName  string   `json:"output_name,omitempty"`
}

// LoadMetadata reads and validates the metadata file at path.
func LoadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if meta.InputName == "" {
		meta.InputName = "input"
	}
	if meta.OutputName == "" {
		meta.OutputName = "output"
	}

	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid metadata %s: %w", path, err)
	}
	return &meta, nil
}

// Validate checks that the model takes one NHWC RGB image of ImageSize and
// returns one score per class.
func (m *Metadata) Validate() error {
	if len(m.InputShape) != 4 {
		return fmt.Errorf("input_shape must have 4 dimensions, got %v", m.InputShape)
	}
	s := int64(m.ImageSize)
	if m.InputShape[0] != 1 || m.InputShape[1] != s || m.InputShape[2] != s || m.InputShape[3] != 3 {
		return fmt.Errorf("input_shape %v does not match (1, %d, %d, 3)", m.InputShape, s, s)
	}
	if len(m.Classes) == 0 {
		return fmt.Errorf("classes must not be empty")
	}
	if n := m.OutputSize(); n != len(m.Classes) {
		return fmt.Errorf("output_shape %v holds %d values for %d classes", m.OutputShape, n, len(m.Classes))
	}
	return nil
}

// InputSize is the number of float32 values the model consumes.
func (m *Metadata) InputSize() int {
	return product(m.InputShape)
}

// OutputSize is the number of float32 values the model produces.
func (m *Metadata) OutputSize() int {
	return product(m.OutputShape)
}

func product(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}
