package formatter

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mixelka/pdfingest/pkg/models"
)

func TestSubject(t *testing.T) {
	f := NewNoticeFormatter()
	assert.Equal(t, "[Ingest Failed] Re: Scan from MFP", f.Subject("Scan from MFP"))
}

func TestRejection(t *testing.T) {
	f := NewNoticeFormatter()

	tests := map[models.RejectReason]string{
		models.RejectAttachmentCount: "The incoming scan 'S' was declined as it did not contain the correct number of attachments.",
		models.RejectAttachmentType:  "The incoming scan 'S' was declined as it did not contain a valid type of attachment.",
		models.RejectBarcode:         "The incoming scan 'S' was declined as it did not contain a single valid barcode.",
	}
	for reason, want := range tests {
		assert.Equal(t, want, f.Rejection("S", reason), reason)
	}
}

func TestServerError(t *testing.T) {
	f := NewNoticeFormatter()
	body := f.ServerError("S")

	assert.True(t, strings.HasPrefix(body, "The incoming scan 'S' failed to process due to a server error."))
	assert.Contains(t, body, "Helpdesk")
}

func TestFailureAlertEscapes(t *testing.T) {
	f := NewNoticeFormatter()
	msg := &models.InboundMessage{From: "a@b.com", Subject: "<script>"}

	text := f.FailureAlert(msg, errors.New("bad & worse"))
	assert.Contains(t, text, "&lt;script&gt;")
	assert.Contains(t, text, "bad &amp; worse")
	assert.NotContains(t, text, "Date:")
}

func TestStoppedAlertTruncates(t *testing.T) {
	f := NewNoticeFormatter()
	text := f.StoppedAlert(errors.New(strings.Repeat("x", 5000)))

	assert.Less(t, len([]rune(text)), 4000)
	assert.Equal(t, "<b>Ingest stopped</b>", f.StoppedAlert(nil))
}

func TestStatus(t *testing.T) {
	f := NewNoticeFormatter()

	text := f.Status("polling", 3, 2, 1, 0)
	assert.True(t, strings.HasPrefix(text, "<b>Ingest:</b> polling"))
	assert.Contains(t, text, "Accepted: 3\n")
	assert.Contains(t, text, "Rejected: 2\n")
	assert.Contains(t, text, "Dropped: 1\n")
	assert.Contains(t, text, "Failed: 0")
}
