package mailstore

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"mailsearch/backend/internal/domain"
)

// DASL 属性标识。主题走 httpmail 索引，正文走 MAPI 纯文本属性。
const (
	daslSubject = `"urn:schemas:httpmail:subject"`
	daslBody    = `"http://schemas.microsoft.com/mapi/proptag/0x1000001E"`

	// filterDateLayout Restrict 日期字面量的格式（月/日/年）。
	filterDateLayout = "01/02/2006"
)

// EscapeText 转义过滤表达式中的搜索文本：单引号与双引号各自双写。
func EscapeText(text string) string {
	text = strings.ReplaceAll(text, "'", "''")
	return strings.ReplaceAll(text, `"`, `""`)
}

func unescapeText(text string) string {
	text = strings.ReplaceAll(text, "''", "'")
	return strings.ReplaceAll(text, `""`, `"`)
}

// SubjectFilter 构建仅主题的索引过滤表达式（最快，层级 1）。
func SubjectFilter(text string) string {
	return fmt.Sprintf(`@SQL=%s LIKE '%%%s%%'`, daslSubject, EscapeText(text))
}

// SubjectOrBodyFilter 构建主题或正文的组合索引过滤表达式（层级 2）。
func SubjectOrBodyFilter(text string) string {
	escaped := EscapeText(text)
	return fmt.Sprintf(`@SQL=%s LIKE '%%%s%%' OR %s LIKE '%%%s%%'`,
		daslSubject, escaped, daslBody, escaped)
}

// ReceivedSinceFilter 构建接收时间下界过滤表达式。
func ReceivedSinceFilter(since time.Time) string {
	return fmt.Sprintf("[ReceivedTime] >= '%s'", since.Format(filterDateLayout))
}

// ReceivedBetweenFilter 构建半开日期窗口 [start, end) 的过滤表达式。
func ReceivedBetweenFilter(start, end time.Time) string {
	return fmt.Sprintf("[ReceivedTime] >= '%s' AND [ReceivedTime] < '%s'",
		start.Format(filterDateLayout), end.Format(filterDateLayout))
}

// Filter 过滤表达式的结构化形式，供存储实现解释执行。
type Filter struct {
	// Text LIKE 模式中的搜索文本（已反转义）。为空表示纯日期过滤。
	Text string

	// Subject / Body 标记文本匹配覆盖的字段。
	Subject bool
	Body    bool

	// Since / Before 日期窗口边界，零值表示无界。
	Since  time.Time
	Before time.Time
}

var (
	likePattern  = regexp.MustCompile(`LIKE '%(.*?)%'`)
	sincePattern = regexp.MustCompile(`\[ReceivedTime\] >= '(\d{2}/\d{2}/\d{4})'`)
	untilPattern = regexp.MustCompile(`\[ReceivedTime\] < '(\d{2}/\d{2}/\d{4})'`)
)

// ParseFilter 解析 Restrict 的过滤表达式。
//
// 只认两种语法族：@SQL 的 LIKE 文本过滤与 [ReceivedTime] 日期过滤，
// 与构建函数严格对偶。其余表达式视为存储不支持的查询语法。
func ParseFilter(expr string) (Filter, error) {
	var f Filter

	switch {
	case strings.HasPrefix(expr, "@SQL="):
		m := likePattern.FindStringSubmatch(expr)
		if m == nil {
			return f, &domain.QuerySyntaxError{Filter: expr, Err: fmt.Errorf("no LIKE pattern")}
		}
		f.Text = unescapeText(m[1])
		f.Subject = strings.Contains(expr, daslSubject)
		f.Body = strings.Contains(expr, daslBody)
		if !f.Subject && !f.Body {
			return f, &domain.QuerySyntaxError{Filter: expr, Err: fmt.Errorf("unknown property")}
		}
		return f, nil

	case strings.HasPrefix(expr, "[ReceivedTime]"):
		m := sincePattern.FindStringSubmatch(expr)
		if m == nil {
			return f, &domain.QuerySyntaxError{Filter: expr, Err: fmt.Errorf("no lower bound")}
		}
		since, err := time.ParseInLocation(filterDateLayout, m[1], time.Local)
		if err != nil {
			return f, &domain.QuerySyntaxError{Filter: expr, Err: err}
		}
		f.Since = since
		if m := untilPattern.FindStringSubmatch(expr); m != nil {
			before, err := time.ParseInLocation(filterDateLayout, m[1], time.Local)
			if err != nil {
				return f, &domain.QuerySyntaxError{Filter: expr, Err: err}
			}
			f.Before = before
		}
		return f, nil

	default:
		return f, &domain.QuerySyntaxError{Filter: expr, Err: fmt.Errorf("unsupported syntax")}
	}
}
