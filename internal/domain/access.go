package domain

// AccessStatus 描述个人邮箱与共享邮箱的可达性与保留策略。
//
// 对应 check_mailbox_access 操作的返回载荷。
// Errors 收集探测过程中的非致命错误，共享邮箱未配置不算错误。
type AccessStatus struct {
	OutlookConnected        bool     `json:"outlookConnected"`
	PersonalAccessible      bool     `json:"personalAccessible"`
	SharedAccessible        bool     `json:"sharedAccessible"`
	SharedConfigured        bool     `json:"sharedConfigured"`
	PersonalName            string   `json:"personalName,omitempty"`
	SharedName              string   `json:"sharedName,omitempty"`
	RetentionPersonalMonths int      `json:"retentionPersonalMonths"`
	RetentionSharedMonths   int      `json:"retentionSharedMonths"`
	Errors                  []string `json:"errors"`
}
