// Package faq 基于关键字的常见问题助手
package faq

import (
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"
)

// Topic 一个问题主题
type Topic struct {
	Key    string
	Answer string
}

// DefaultTopics 内置主题，按优先级排列
var DefaultTopics = []Topic{
	{"template", "1. Open Microsoft Word\n2. Write your letter normally\n3. Use placeholders like {name}, {student_id}, {date}, {program}\n   Example: Dear {name}, your viva is on {tarikh_viva}\n4. Save as .docx, then run: docx-mailmerge template upload <file>"},
	{"placeholder", "Use curly braces in Word:\n• {name} → student name\n• {student_id}\n• {date} or {tarikh_viva}\n• {program}\n• {degree} or {jenis_degree}\n\nYou can also write {{name}} if you prefer double braces.\nWrite {NAME} in capitals to get the value in capitals.\nFields ending in _image (e.g. {signature_image}) take a path to a picture."},
	{"how to rename", "Pass a pattern with --pattern using placeholders:\n• Offer_Letter_{name}\n• Viva_{program}_{name}\n• {student_id}_Result\nLeave blank → uses template name + random code"},
	{"paste data", "Use this format (one person per line):\nname: Ahmad, student_id: A123, address: Kuala Lumpur\nname: Siti, student_id: A124, program: LT750\nThen run: docx-mailmerge paste <file> (or - for stdin)"},
	{"viva", "Steps for viva letters:\n1. Prepare an Excel/CSV file with a 'name' or 'nama' column\n2. Run: docx-mailmerge viva sheet <students file> > assign.yaml\n3. Fill in template, program, degree and date for each student\n4. Run: docx-mailmerge viva generate <students file> --assignments assign.yaml\n5. (Optional) add --pattern to rename files"},
	{"excel", "Your Excel file needs at least one column: 'name' or 'nama'\nOptional columns:\n• program\n• degree\n• tarikh_viva (or date)\nDates will be auto-formatted as '14 October 2025'"},
	{"error", "Common errors & fixes:\n• 'Only .docx allowed' → upload Word files only\n• 'must include name/nama column' → add a column named 'name' or 'nama'\n• Template not found → upload it first with: docx-mailmerge template upload <file>\n• 'Load data first' → run: docx-mailmerge data load <file> or docx-mailmerge paste <file>"},
	{"date", "Just put any date in Excel (e.g. 20/10/2025, 2025-10-20, or Excel serial)\nIt will become: 20 October 2025 automatically"},
	{"sample", "Run 'docx-mailmerge generate sample' to see one letter before generating all.\nGreat for checking formatting!"},
}

// HelpMenu 没有匹配主题时的回复
const HelpMenu = "I'm still learning! Here are things I can help with:\n" +
	"• how to create template\n" +
	"• placeholder format\n" +
	"• how to rename files\n" +
	"• viva letter steps\n" +
	"• excel format\n" +
	"• common errors\n" +
	"Just type any of those keywords!"

// minFuzzyWord 参与模糊匹配的最短单词长度
const minFuzzyWord = 4

// Reply 一次回答
type Reply struct {
	Question string
	Topic    string // 为空表示没有匹配
	Answer   string
}

// Assistant 问答助手，保留对话历史
type Assistant struct {
	topics  []Topic
	keys    []string
	mu      sync.Mutex
	history []Reply
}

// NewAssistant 创建助手，topics 为空时使用内置主题
func NewAssistant(topics []Topic) *Assistant {
	if len(topics) == 0 {
		topics = DefaultTopics
	}
	a := &Assistant{topics: topics}
	for _, t := range topics {
		a.keys = append(a.keys, t.Key)
	}
	return a
}

// Ask 回答一个问题：先找包含的主题关键字，再对单词做模糊匹配，否则返回帮助菜单
func (a *Assistant) Ask(question string) Reply {
	reply := Reply{Question: question, Answer: HelpMenu}
	if i := a.match(question); i >= 0 {
		reply.Topic = a.topics[i].Key
		reply.Answer = a.topics[i].Answer
	}

	a.mu.Lock()
	a.history = append(a.history, reply)
	a.mu.Unlock()
	return reply
}

// History 返回对话历史
func (a *Assistant) History() []Reply {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Reply(nil), a.history...)
}

func (a *Assistant) match(question string) int {
	msg := strings.ToLower(strings.TrimSpace(question))
	if msg == "" {
		return -1
	}

	for i, key := range a.keys {
		if strings.Contains(msg, key) {
			return i
		}
	}

	best, bestScore := -1, 0
	for _, word := range strings.FieldsFunc(msg, isSeparator) {
		if len([]rune(word)) < minFuzzyWord {
			continue
		}
		matches := fuzzy.Find(word, a.keys)
		if len(matches) == 0 {
			continue
		}
		if best < 0 || matches[0].Score > bestScore {
			best, bestScore = matches[0].Index, matches[0].Score
		}
	}
	return best
}

func isSeparator(r rune) bool {
	return !(r == '_' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
}
