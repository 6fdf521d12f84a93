package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// capture redirects output for one test and restores the defaults afterwards.
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetVerbose(false)
		SetTrace(false)
		SetOutput(os.Stderr)
	})
	return &buf
}

func TestLevels(t *testing.T) {
	tests := []struct {
		name string
		log  func(string, ...any)
		want string
	}{
		{name: "debug", log: Debug, want: "[DEBUG] ews: POST https://mail.example.com/EWS/Exchange.asmx\n"},
		{name: "info", log: Info, want: "[INFO] ews: POST https://mail.example.com/EWS/Exchange.asmx\n"},
		{name: "warn", log: Warn, want: "[WARN] ews: POST https://mail.example.com/EWS/Exchange.asmx\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := capture(t)
			SetVerbose(true)

			tt.log("ews: POST %s", "https://mail.example.com/EWS/Exchange.asmx")

			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestQuietByDefault(t *testing.T) {
	buf := capture(t)
	SetVerbose(false)

	Debug("hidden")
	Info("hidden")
	Warn("hidden")
	Payload("request", []byte("<Envelope/>"))

	assert.Empty(t, buf.String())
	assert.False(t, IsVerbose())
}

func TestSetTrace_ImpliesVerbose(t *testing.T) {
	capture(t)

	SetTrace(true)
	assert.True(t, IsTracing())
	assert.True(t, IsVerbose())

	SetTrace(false)
	assert.False(t, IsTracing())
	assert.True(t, IsVerbose(), "turning tracing off leaves verbose output alone")
}

func TestPayload(t *testing.T) {
	buf := capture(t)
	SetTrace(true)

	Payload("autodiscover response from https://autodiscover.example.com", []byte("\n  <Envelope/>\n"))

	assert.Equal(t, "[TRACE] autodiscover response from https://autodiscover.example.com (15 bytes)\n<Envelope/>\n", buf.String())
}

func TestPayload_VerboseWithoutTrace(t *testing.T) {
	buf := capture(t)
	SetVerbose(true)

	Payload("request", []byte("<Envelope/>"))

	assert.Empty(t, buf.String())
}

func TestPayload_Truncates(t *testing.T) {
	buf := capture(t)
	SetTrace(true)

	body := []byte("<a>" + strings.Repeat("x", MaxPayload) + "</a>")
	Payload("response", body)

	out := buf.String()
	assert.Contains(t, out, "(65543 bytes)")
	assert.Contains(t, out, "... 7 more bytes")
	assert.NotContains(t, out, "</a>")
}

func TestConcurrentUse(t *testing.T) {
	capture(t)
	SetVerbose(true)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			SetVerbose(i%2 == 0)
		}
	}()
	for i := 0; i < 100; i++ {
		Debug("message %d", i)
		_ = IsVerbose()
	}
	<-done
}
