package domain

import "time"

// MailboxScope 邮箱范围：个人邮箱或组织共享邮箱。
type MailboxScope string

const (
	ScopePersonal MailboxScope = "personal"
	ScopeShared   MailboxScope = "shared"
)

// EmailRecord 表示一封已规范化的邮件记录。
//
// 由 Normalizer 从邮件存储的候选项构建，构建完成后不再修改。
// EntryID 为空的记录不参与去重（见 search.Dedup）。
type EmailRecord struct {
	EntryID         string       `json:"entryId"`
	Subject         string       `json:"subject"`
	SenderName      string       `json:"senderName"`
	SenderEmail     string       `json:"senderEmail"`
	Recipients      []string     `json:"recipients"`      // 超出显示上限时以 "+N more" 结尾
	ReceivedAt      time.Time    `json:"receivedAt"`
	FolderName      string       `json:"folderName"`
	MailboxScope    MailboxScope `json:"mailboxScope"`
	Importance      int          `json:"importanceLevel"`
	Body            string       `json:"body"`            // 已去除 HTML、折叠空白，可能带截断标记
	Size            int          `json:"sizeBytes"`
	AttachmentCount int          `json:"attachmentCount"`
	Unread          bool         `json:"isUnread"`
}
