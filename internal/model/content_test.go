package model

import (
	"errors"
	"testing"

	"github.com/psds-microservice/ticket-chat-service/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageContent(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		imageURL string
		want     ContentKind
	}{
		{"text only", "hello", "", ContentText},
		{"image only", "", "https://cdn/x.png", ContentImage},
		{"both", "see attached", "https://cdn/x.png", ContentTextAndImage},
		{"whitespace text with image", "   ", "https://cdn/x.png", ContentImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewMessageContent(tt.text, tt.imageURL, "chat-images/t/1.png")
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Kind())
			assert.True(t, c.Valid())
		})
	}
}

func TestNewMessageContentRejectsEmpty(t *testing.T) {
	for _, in := range [][3]string{{"", "", ""}, {"  ", "", ""}, {"", "", "chat-images/t/1.png"}} {
		_, err := NewMessageContent(in[0], in[1], in[2])
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
	}
	var zero MessageContent
	assert.False(t, zero.Valid())
}

func TestMessageContentImageKeepsFilePath(t *testing.T) {
	c, err := NewMessageContent("", "https://cdn/x.png", " chat-images/t/1.png ")
	require.NoError(t, err)
	img, ok := c.Image()
	require.True(t, ok)
	assert.Equal(t, "https://cdn/x.png", img.URL)
	assert.Equal(t, "chat-images/t/1.png", img.FilePath)
}

func TestStatusAndPriorityValid(t *testing.T) {
	for _, s := range []TicketStatus{TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, TicketStatus("in_progress").Valid())
	assert.True(t, TicketPriorityHigh.Valid())
	assert.False(t, TicketPriority("urgent").Valid())
	assert.True(t, UserRoleAdmin.IsStaff())
	assert.False(t, UserRoleCustomer.IsStaff())
}
