package gate

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"fmt"
	"text/template"
	"time"
)

//go:embed static/gate.html
var formSource string

var formTemplate = template.Must(template.New("gate").Parse(formSource))

// FormURL renders the credential form into a self-contained data: URL.
func FormURL(poll time.Duration) (string, error) {
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	var buf bytes.Buffer
	err := formTemplate.Execute(&buf, map[string]any{
		"PollMillis":    poll.Milliseconds(),
		"VerifyBinding": VerifyBinding,
		"SignalBinding": SignalBinding,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render gate form: %w", err)
	}

	return "data:text/html;charset=utf-8;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
