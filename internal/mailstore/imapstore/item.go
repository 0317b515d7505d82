package imapstore

import (
	"bytes"
	"io"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"mailsearch/backend/internal/mailstore"
)

// fetchedItem FETCH 响应物化出的候选项。实现 mailstore.Item。
// 属性在构建时一次性填充，Property 只做查表。
type fetchedItem struct {
	uid   imap.UID
	props map[string]any
	err   error
}

// newFetchedItem 从 FETCH 缓冲构建候选项。
func newFetchedItem(buf *imapclient.FetchMessageBuffer, section *imap.FetchItemBodySection) *fetchedItem {
	it := &fetchedItem{uid: buf.UID, props: map[string]any{}}

	if env := buf.Envelope; env != nil {
		it.props[mailstore.PropEntryID] = env.MessageID // 可能为空：此类记录不参与去重
		it.props[mailstore.PropSubject] = env.Subject
		it.props[mailstore.PropReceivedTime] = env.Date
		if len(env.From) > 0 {
			it.props[mailstore.PropSenderName] = env.From[0].Name
			it.props[mailstore.PropSenderEmail] = env.From[0].Addr()
		}
		var recipients []string
		for _, to := range env.To {
			if to.Name != "" {
				recipients = append(recipients, to.Name)
			} else {
				recipients = append(recipients, to.Addr())
			}
		}
		it.props[mailstore.PropRecipients] = recipients
	}

	it.props[mailstore.PropSize] = int(buf.RFC822Size)

	unread := true
	for _, flag := range buf.Flags {
		if flag == imap.FlagSeen {
			unread = false
		}
	}
	it.props[mailstore.PropUnread] = unread

	if raw := buf.FindBodySection(section); raw != nil {
		body, attachments := parseBody(raw)
		it.props[mailstore.PropBody] = body
		it.props[mailstore.PropAttachmentCount] = attachments
	}

	return it
}

// Property 实现 mailstore.Item。
func (it *fetchedItem) Property(name string) (any, error) {
	if it.err != nil {
		return nil, it.err
	}
	v, ok := it.props[name]
	if !ok {
		return nil, nil
	}
	return v, nil
}

// parseBody 解析 MIME 正文，优先纯文本，退回 HTML，并统计附件数。
func parseBody(raw []byte) (string, int) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		// 解析失败时整体当作纯文本。
		return string(raw), 0
	}
	defer mr.Close()

	var textBody, htmlBody string
	attachments := 0

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				textBody = string(body)
			case strings.HasPrefix(contentType, "text/html"):
				htmlBody = string(body)
			}
		case *mail.AttachmentHeader:
			attachments++
		}
	}

	if textBody != "" {
		return textBody, attachments
	}
	return htmlBody, attachments
}
