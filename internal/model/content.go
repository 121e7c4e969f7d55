package model

import (
	"fmt"
	"strings"

	"github.com/psds-microservice/ticket-chat-service/internal/errs"
)

type ContentKind int

const (
	ContentText ContentKind = iota + 1
	ContentImage
	ContentTextAndImage
)

// ImageRef points at an uploaded attachment. URL is a short-lived display
// link; FilePath is the durable blob-store key it was signed from.
type ImageRef struct {
	URL      string
	FilePath string
}

// MessageContent is the validated body of a message: text, an image, or both.
// The zero value is not valid; build it with NewMessageContent.
type MessageContent struct {
	text  string
	image *ImageRef
}

func NewMessageContent(text, imageURL, filePath string) (MessageContent, error) {
	text = strings.TrimSpace(text)
	imageURL = strings.TrimSpace(imageURL)
	if text == "" && imageURL == "" {
		return MessageContent{}, fmt.Errorf("%w: either a message or an image must be sent", errs.ErrInvalidArgument)
	}
	c := MessageContent{text: text}
	if imageURL != "" {
		c.image = &ImageRef{URL: imageURL, FilePath: strings.TrimSpace(filePath)}
	}
	return c, nil
}

func (c MessageContent) Kind() ContentKind {
	switch {
	case c.text != "" && c.image != nil:
		return ContentTextAndImage
	case c.image != nil:
		return ContentImage
	case c.text != "":
		return ContentText
	}
	return 0
}

func (c MessageContent) Valid() bool { return c.Kind() != 0 }

func (c MessageContent) Text() string { return c.text }

func (c MessageContent) Image() (ImageRef, bool) {
	if c.image == nil {
		return ImageRef{}, false
	}
	return *c.image, true
}
