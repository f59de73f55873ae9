package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DecodeDocument reads JSON or YAML into T. YAML is converted to JSON first
// so json struct tags apply to both.
func DecodeDocument[T any](data []byte) (*T, error) {

	var item T

	// Skip leading whitespace to find the first significant byte
	data = bytes.TrimLeftFunc(data, unicode.IsSpace)

	if len(data) == 0 {
		return nil, fmt.Errorf("no data provided")

	} else if data[0] == '{' || data[0] == '[' {
		logrus.Debugln("Data format detected: JSON")
	} else {
		var yamlData any
		if err := yaml.Unmarshal(data, &yamlData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
		}

		if jsonData, err := json.Marshal(yamlData); err != nil {
			return nil, fmt.Errorf("failed to convert YAML to JSON: %w", err)
		} else {
			data = jsonData
		}
	}

	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}

	return &item, nil
}
