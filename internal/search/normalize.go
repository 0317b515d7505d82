package search

import (
	"fmt"
	"time"

	"mailsearch/backend/internal/domain"
	"mailsearch/backend/internal/mailstore"
)

// 属性缺失时的安全默认值。
const (
	defaultSubject    = "No Subject"
	defaultSenderName = "Unknown"
	defaultImportance = 1

	// truncatedMarker 正文超长截断后的尾部标记。
	truncatedMarker = " [truncated]"
)

// Normalizer 把存储候选项转换为规范化邮件记录。
//
// 纯转换：正文长度上限（0 表示不限）、HTML 清洗、收件人显示上限
// 都在这里统一套用。任何属性读取故障只导致该候选项被跳过，
// 从不中断整批处理。
type Normalizer struct {
	// MaxBodyChars 正文字符上限，0 表示不截断。
	MaxBodyChars int

	// MaxRecipientsDisplay 收件人显示条数上限，超出以 "+N more" 收尾。
	MaxRecipientsDisplay int

	// CleanHTML 是否执行 HTML 清洗。
	CleanHTML bool
}

// Normalize 从候选项构建 EmailRecord。
// 返回错误表示该候选项应被跳过（ExtractionFailure）。
func (n Normalizer) Normalize(it mailstore.Item, folderName string, scope domain.MailboxScope) (domain.EmailRecord, error) {
	var rec domain.EmailRecord
	var err error

	if rec.EntryID, err = mailstore.StringProp(it, mailstore.PropEntryID, ""); err != nil {
		return rec, err
	}
	if rec.Subject, err = mailstore.StringProp(it, mailstore.PropSubject, defaultSubject); err != nil {
		return rec, err
	}
	if rec.SenderName, err = mailstore.StringProp(it, mailstore.PropSenderName, defaultSenderName); err != nil {
		return rec, err
	}
	if rec.SenderEmail, err = mailstore.StringProp(it, mailstore.PropSenderEmail, ""); err != nil {
		return rec, err
	}
	if rec.ReceivedAt, err = mailstore.TimeProp(it, mailstore.PropReceivedTime, time.Now()); err != nil {
		return rec, err
	}
	if rec.Size, err = mailstore.IntProp(it, mailstore.PropSize, 0); err != nil {
		return rec, err
	}
	if rec.Importance, err = mailstore.IntProp(it, mailstore.PropImportance, defaultImportance); err != nil {
		return rec, err
	}
	if rec.Unread, err = mailstore.BoolProp(it, mailstore.PropUnread, false); err != nil {
		return rec, err
	}
	if rec.AttachmentCount, err = mailstore.IntProp(it, mailstore.PropAttachmentCount, 0); err != nil {
		return rec, err
	}

	body, err := mailstore.StringProp(it, mailstore.PropBody, "")
	if err != nil {
		return rec, err
	}
	rec.Body = n.normalizeBody(body)

	recipients, err := mailstore.StringsProp(it, mailstore.PropRecipients)
	if err != nil {
		return rec, err
	}
	rec.Recipients = n.capRecipients(recipients)

	rec.FolderName = folderName
	rec.MailboxScope = scope
	return rec, nil
}

// normalizeBody 先截断后清洗，沿袭来源的处理顺序。
func (n Normalizer) normalizeBody(body string) string {
	if n.MaxBodyChars > 0 {
		if runes := []rune(body); len(runes) > n.MaxBodyChars {
			body = string(runes[:n.MaxBodyChars]) + truncatedMarker
		}
	}
	if n.CleanHTML && body != "" {
		body = cleanHTML(body)
	}
	return body
}

// capRecipients 套用显示上限，超出部分折叠为 "+N more" 尾项。
func (n Normalizer) capRecipients(recipients []string) []string {
	if n.MaxRecipientsDisplay <= 0 || len(recipients) <= n.MaxRecipientsDisplay {
		return recipients
	}
	capped := make([]string, 0, n.MaxRecipientsDisplay+1)
	capped = append(capped, recipients[:n.MaxRecipientsDisplay]...)
	return append(capped, fmt.Sprintf("+%d more", len(recipients)-n.MaxRecipientsDisplay))
}
