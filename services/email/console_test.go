package emailsvc

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edurpg/edurpg/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func TestConsoleService_SendMessages(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewConsoleServiceMock(conf, nopLogger{})

	svc.SendMessages(
		&core.EmailMessage{
			To:      []mail.Address{{Name: "Ada", Address: "ada@school.test"}},
			Subject: "Hello",
			BodyStr: "Welcome!",
		},
		&core.EmailMessage{Subject: "no recipients", BodyStr: "dropped"},
		&core.EmailMessage{To: []mail.Address{{Address: "bob@school.test"}}, Subject: "no content"},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Hello", sent[0].Subject)
	assert.Equal(t, "Welcome!", sent[0].TextContent)
}

func TestConsoleService_format(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewConsoleServiceMock(conf, nopLogger{})

	body, err := svc.format(core.EmailMessage{
		To:          []mail.Address{{Address: "ada@school.test"}},
		Subject:     "Reset",
		TextContent: "click here",
	})
	require.NoError(t, err)
	assert.Contains(t, body, "Subject: ["+conf.AppName+"] Reset")
	assert.Contains(t, body, "To: <ada@school.test>")
	assert.Contains(t, body, "click here")
	assert.NotContains(t, body, "text/html")
}
