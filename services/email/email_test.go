package emailsvc

import (
	"bytes"
	"net/http"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xDevansh/aries-week/core"
	appfs "github.com/0xDevansh/aries-week/fs"
	testutil "github.com/0xDevansh/aries-week/tests"
)

func trackCompletedMessage() *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: "Ada", Address: "ada@test.cd"}},
		Subject:      "Track completed",
		TemplateName: "track_completed",
		TemplateData: map[string]string{"Name": "Ada", "Track": "Week 1"},
	}
}

func TestConsoleService_SendMessages(t *testing.T) {
	conf := core.NewTestConfig()
	logger := new(testutil.Logger)
	core.ParseEmailTemplates(appfs.FS, conf, logger)
	require.Empty(t, logger.Logged())

	svc := NewConsoleServiceMock(conf, logger)
	var out bytes.Buffer
	svc.out = &out

	svc.SendMessages(
		trackCompletedMessage(),
		&core.EmailMessage{Subject: "no recipient", BodyStr: "ignored"},
		&core.EmailMessage{To: []mail.Address{{Address: "bob@test.cd"}}, Subject: "plain", BodyStr: "hello"},
	)

	sent := svc.Sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].TextContent, `You completed "Week 1"`)
	assert.Contains(t, sent[0].TextContent, conf.FrontendBaseURL+"/dashboard")
	assert.Contains(t, sent[0].HTMLContent, "Week 1")
	assert.Equal(t, "hello", sent[1].TextContent)
	assert.Empty(t, sent[1].HTMLContent)

	assert.Contains(t, out.String(), "Subject: ["+conf.AppName+"] Track completed")
	assert.Contains(t, out.String(), "To: \"Ada\" <ada@test.cd>")
}

func TestSendgridService_send(t *testing.T) {
	conf := core.NewTestConfig()
	conf.SendgridApiKey = "sg-key"

	origAPI, origDelay := sendgridAPI, retryDelay
	retryDelay = time.Millisecond
	t.Cleanup(func() { sendgridAPI, retryDelay = origAPI, origDelay })

	msg := core.EmailMessage{
		To:          []mail.Address{{Name: "Ada", Address: "ada@test.cd"}},
		Subject:     "Hi",
		TextContent: "hello",
	}

	tests := []struct {
		name      string
		responses []*rest.Response
		errs      []error
		wantCalls int
		wantLogs  int
	}{
		{
			name:      "accepted",
			responses: []*rest.Response{{StatusCode: http.StatusAccepted}},
			errs:      []error{nil},
			wantCalls: 1,
		},
		{
			name:      "client error is not retried",
			responses: []*rest.Response{{StatusCode: http.StatusBadRequest, Body: "bad"}},
			errs:      []error{nil},
			wantCalls: 1,
			wantLogs:  1,
		},
		{
			name: "server error then accepted",
			responses: []*rest.Response{
				{StatusCode: http.StatusServiceUnavailable},
				{StatusCode: http.StatusAccepted},
			},
			errs:      []error{nil, nil},
			wantCalls: 2,
		},
		{
			name:      "transport errors exhaust the attempts",
			responses: []*rest.Response{nil, nil, nil},
			errs:      []error{errors.New("down"), errors.New("down"), errors.New("down")},
			wantCalls: 3,
			wantLogs:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := new(testutil.Logger)
			var calls int
			var body string
			sendgridAPI = func(req rest.Request) (*rest.Response, error) {
				calls++
				body = string(req.Body)
				assert.Equal(t, "Bearer sg-key", req.Headers["Authorization"])
				return tt.responses[calls-1], tt.errs[calls-1]
			}

			NewSendgridService(conf, logger).send(msg)

			assert.Equal(t, tt.wantCalls, calls)
			assert.Len(t, logger.Logged(), tt.wantLogs)
			assert.True(t, strings.Contains(body, `"subject":"[`+conf.AppName+`] Hi"`), body)
		})
	}
}

func TestAttachments(t *testing.T) {
	conf := core.NewTestConfig()
	logger := new(testutil.Logger)
	core.ParseEmailTemplates(appfs.FS, conf, logger)

	msg := trackCompletedMessage()
	require.NoError(t, msg.Attach(strings.NewReader("a,b\n"), "week-1-summary.csv", "text/csv"))
	require.NoError(t, msg.Attach(strings.NewReader("plain words"), "notes.txt"))
	require.True(t, msg.HasAttachments())
	assert.Equal(t, "YSxiCg==", msg.Attachments[0].Content.String())
	assert.Equal(t, "text/plain; charset=utf-8", msg.Attachments[1].ContentType)

	t.Run("console", func(t *testing.T) {
		svc := NewConsoleServiceMock(conf, logger)
		var out bytes.Buffer
		svc.out = &out

		svc.SendMessages(msg)

		require.Len(t, svc.Sent(), 1)
		assert.Contains(t, out.String(), "Content-Disposition: attachment; filename=week-1-summary.csv")
		assert.Contains(t, out.String(), "Content-Type: text/csv")
		assert.Contains(t, out.String(), "YSxiCg==")
		assert.Contains(t, out.String(), "filename=notes.txt")
	})

	t.Run("sendgrid", func(t *testing.T) {
		conf := core.NewTestConfig()
		conf.SendgridApiKey = "sg-key"
		m := NewSendgridService(conf, logger).prepare(*msg)

		require.Len(t, m.Attachments, 2)
		assert.Equal(t, "week-1-summary.csv", m.Attachments[0].Filename)
		assert.Equal(t, "text/csv", m.Attachments[0].Type)
		assert.Equal(t, "YSxiCg==", m.Attachments[0].Content)
		assert.Equal(t, "attachment", m.Attachments[1].Disposition)
	})

	assert.Empty(t, logger.Logged())
}
