package model

import (
	"time"
)

// Attachment is a staged file reference carried on the next outgoing message.
// Ownership transfers to the outgoing request on send; the staged list is
// cleared once the send succeeds.
type Attachment struct {
	ID       string    `json:"id"`
	FileName string    `json:"file_name"`
	MIMEType string    `json:"mime_type"`
	Size     int64     `json:"size"`
	StagedAt time.Time `json:"staged_at"`
}

// StageAttachmentRequest is the request to stage a file for the next message.
type StageAttachmentRequest struct {
	FileName string `json:"file_name"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size"`
}
