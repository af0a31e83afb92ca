package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/helioshq/assistant-portal/internal/model"
	"github.com/helioshq/assistant-portal/pkg/metrics"
)

// AttachmentLimits constrains what can be staged for the next message.
type AttachmentLimits struct {
	MaxBytes  int64
	MIMETypes []string
	MaxStaged int
}

// ValidationError is an attachment rejection with a user-visible reason
// naming the offending file and the limit violated.
type ValidationError struct {
	FileName string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.FileName, e.Reason)
}

// StageAttachment validates a file and adds it to the staged list for the
// next outgoing message. Violations are rejected at staging time with a
// specific reason, never silently dropped.
func (c *Controller) StageAttachment(req *model.StageAttachmentRequest) (*model.Attachment, error) {
	if req.Size > c.limits.MaxBytes {
		metrics.AttachmentsRejected.WithLabelValues("size").Inc()
		return nil, &ValidationError{
			FileName: req.FileName,
			Reason: fmt.Sprintf("file is %d bytes, exceeding the %d byte limit",
				req.Size, c.limits.MaxBytes),
		}
	}

	if !c.mimeAllowed(req.MIMEType) {
		metrics.AttachmentsRejected.WithLabelValues("type").Inc()
		return nil, &ValidationError{
			FileName: req.FileName,
			Reason:   fmt.Sprintf("file type %q is not allowed", req.MIMEType),
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.limits.MaxStaged > 0 && len(c.staged) >= c.limits.MaxStaged {
		metrics.AttachmentsRejected.WithLabelValues("count").Inc()
		return nil, &ValidationError{
			FileName: req.FileName,
			Reason:   fmt.Sprintf("at most %d files can be staged per message", c.limits.MaxStaged),
		}
	}

	a := model.Attachment{
		ID:       uuid.Must(uuid.NewV7()).String(),
		FileName: req.FileName,
		MIMEType: req.MIMEType,
		Size:     req.Size,
		StagedAt: time.Now(),
	}
	c.staged = append(c.staged, a)
	return &a, nil
}

// StagedAttachments returns the files currently staged for the next
// message.
func (c *Controller) StagedAttachments() []model.Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.Attachment, len(c.staged))
	copy(out, c.staged)
	return out
}

// RemoveStaged unstages one file by id.
func (c *Controller) RemoveStaged(attachmentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, a := range c.staged {
		if a.ID == attachmentID {
			c.staged = append(c.staged[:i], c.staged[i+1:]...)
			return true
		}
	}
	return false
}

// takeStaged transfers ownership of the staged list to an outgoing request.
func (c *Controller) takeStaged() []model.Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()

	staged := c.staged
	c.staged = nil
	return staged
}

func (c *Controller) mimeAllowed(mimeType string) bool {
	for _, allowed := range c.limits.MIMETypes {
		if mimeType == allowed {
			return true
		}
	}
	return false
}
