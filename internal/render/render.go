// Package render turns a publishable item into the blog document and the
// chat message. Rendering is pure: the same item always yields the same
// output.
package render

import (
	"html/template"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/deusflow/impactdigest/internal/logger"
	"github.com/deusflow/impactdigest/internal/news"
)

const (
	maxTitleRunes = 256
	dateLayout    = "02 January 2006"
)

var truncatedMarker = "\n" + Escape("… (truncated)")

// BlogDocument is a ready to publish blog post.
type BlogDocument struct {
	Title  string
	HTML   string
	Labels []string
}

type Options struct {
	Labels    []string
	ChatLimit int // runes allowed for one chat message
}

type Renderer struct {
	labels    []string
	chatLimit int
}

func New(opts Options) *Renderer {
	limit := opts.ChatLimit
	if limit <= 0 {
		limit = 4000
	}
	return &Renderer{
		labels:    append([]string(nil), opts.Labels...),
		chatLimit: limit,
	}
}

// Render builds both sink representations of item. Summary and impact are
// split into points and numbered independently for each sink.
func (r *Renderer) Render(item news.PublishableItem) (BlogDocument, ChatMessage) {
	summary := news.Points(item.Summary)
	impact := news.Points(item.Impact)

	doc := BlogDocument{
		Title:  strings.TrimSpace(item.Title),
		HTML:   r.blogHTML(item, summary, impact),
		Labels: append([]string(nil), r.labels...),
	}

	return doc, r.chatMessage(item, summary, impact)
}

var blogTemplate = template.Must(template.New("post").Parse(`<div style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; max-width: 800px; margin: 0 auto;">
<div style="display: flex; justify-content: space-between; align-items: center; margin-bottom: 30px;">
<span style="background: #fee2e2; color: #ef4444; padding: 6px 12px; border-radius: 20px; font-size: 12px; font-weight: 700;">🔥 Top AI News</span>
<span style="color: #9ca3af; font-size: 13px;">{{.Date}}</span>
</div>
<div style="background: #fff; border: 1px solid #eee; border-radius: 16px; padding: 24px; margin-bottom: 24px;">
<h3 style="font-size: 20px; font-weight: 700; color: #1a1a1a; margin-bottom: 20px; line-height: 1.4;">{{.Title}}</h3>
<div style="background: #fcfcfc; border-radius: 12px; padding: 16px; margin-bottom: 12px; border: 1px solid #f0f0f0;">
<strong style="color: #1a1a1a; font-size: 12px; letter-spacing: 0.5px; text-transform: uppercase;">Summary</strong>
<ol style="color: #4b5563; font-size: 15px; line-height: 1.6;">
{{range .Summary}}<li>{{.}}</li>
{{end}}</ol>
</div>
<div style="background: #fcfcfc; border-radius: 12px; padding: 16px; border: 1px solid #f0f0f0;">
<strong style="color: #1a1a1a; font-size: 12px; letter-spacing: 0.5px; text-transform: uppercase;">Impact</strong>
<ol style="color: #4b5563; font-size: 15px; line-height: 1.6;">
{{range .Impact}}<li>{{.}}</li>
{{end}}</ol>
</div>
<div style="margin-top: 20px; text-align: right;">
<a href="{{.Link}}" style="color: #3b82f6; text-decoration: none; font-weight: 600; font-size: 14px;">Read Full Story →</a>
</div>
</div>
</div>`))

type blogData struct {
	Date    string
	Title   string
	Summary []string
	Impact  []string
	Link    string
}

func (r *Renderer) blogHTML(item news.PublishableItem, summary, impact []string) string {
	data := blogData{
		Title:   item.Title,
		Summary: summary,
		Impact:  impact,
		Link:    item.Link,
	}
	if !item.Date.IsZero() {
		data.Date = item.Date.Format(dateLayout)
	}

	var b strings.Builder
	if err := blogTemplate.Execute(&b, data); err != nil {
		logger.Error("Blog template failed, using plain document", "error", err)
		return "<p>" + template.HTMLEscapeString(item.Title) + "</p>"
	}
	return b.String()
}

// ChatMessage is the chat representation of an item. The final text needs
// the blog post address, which is only known after the blog publish.
type ChatMessage struct {
	lines []chatLine
	link  string
	limit int
}

type chatLine struct {
	text  string
	point bool // escaped plain text, safe to cut
}

func (r *Renderer) chatMessage(item news.PublishableItem, summary, impact []string) ChatMessage {
	title := strings.TrimSpace(item.Title)
	if utf8.RuneCountInString(title) > maxTitleRunes {
		title = string([]rune(title)[:maxTitleRunes-1]) + "…"
	}

	lines := []chatLine{
		{text: "*" + Escape(title) + "*"},
		{},
		{text: "📝 *Summary*"},
	}
	lines = append(lines, numbered(summary)...)
	lines = append(lines, chatLine{}, chatLine{text: "⚡ *Impact*"})
	lines = append(lines, numbered(impact)...)

	return ChatMessage{lines: lines, link: item.Link, limit: r.chatLimit}
}

func numbered(points []string) []chatLine {
	out := make([]chatLine, 0, len(points))
	for i, p := range points {
		out = append(out, chatLine{
			text:  strconv.Itoa(i+1) + `\. ` + Escape(p),
			point: true,
		})
	}
	return out
}

// Text returns the MarkdownV2 message linking to postURL (or to the source
// link when postURL is empty). The result never exceeds the limit, counted
// in UTF-16 code units as Telegram does.
func (m ChatMessage) Text(postURL string) string {
	link := postURL
	if link == "" {
		link = m.link
	}
	footer := m.footer(link)

	body := m.body(m.limit - textLen(footer))
	text := body + footer
	if textLen(text) > m.limit {
		text = cutText(text, m.limit)
	}
	return text
}

// footer links to the post. An address too long for a link entity is
// shown as shortened plain text instead, so a cut never breaks markup.
func (m ChatMessage) footer(link string) string {
	plain := "\n\n🔗 " + Escape("Read the full analysis: ")
	if link == "" {
		return plain
	}
	footer := "\n\n🔗 [" + Escape("Read the full analysis") + "](" + escapeURL(link) + ")"
	if textLen(footer) <= m.limit/2 {
		return footer
	}
	return plain + cutText(Escape(link), m.limit/2-textLen(plain))
}

// body joins the lines, cutting them to fit into budget units.
func (m ChatMessage) body(budget int) string {
	var b strings.Builder
	used := 0
	for i, l := range m.lines {
		sep := 0
		if i > 0 {
			sep = 1
		}
		n := textLen(l.text) + sep
		if used+n <= budget {
			if sep == 1 {
				b.WriteByte('\n')
			}
			b.WriteString(l.text)
			used += n
			continue
		}

		// does not fit: keep what we can and mark the cut
		room := budget - used - textLen(truncatedMarker) - sep
		if l.point && room > 8 {
			if sep == 1 {
				b.WriteByte('\n')
			}
			b.WriteString(cutText(l.text, room))
		}
		out := strings.TrimRight(b.String(), "\n")
		return cutText(out, budget-textLen(truncatedMarker)) + truncatedMarker
	}
	return b.String()
}

// textLen counts UTF-16 code units, the unit of Telegram's message limit.
func textLen(s string) int {
	n := 0
	for _, r := range s {
		n += runeLen(r)
	}
	return n
}

func runeLen(r rune) int {
	if l := utf16.RuneLen(r); l > 0 {
		return l
	}
	return 1
}

// cutText keeps at most n UTF-16 units of s without splitting a rune or
// leaving a dangling escape.
func cutText(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if textLen(s) <= n {
		return s
	}
	used, end := 0, 0
	for i, r := range s {
		if used+runeLen(r) > n {
			end = i
			break
		}
		used += runeLen(r)
	}
	out := s[:end]
	trailing := len(out) - len(strings.TrimRight(out, `\`))
	if trailing%2 == 1 {
		out = out[:len(out)-1]
	}
	return out
}

// Escape makes s safe to embed as plain text in a MarkdownV2 message.
func Escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, strings.ReplaceAll(s, `\`, `\\`))
}

func escapeURL(u string) string {
	return strings.NewReplacer(`\`, `\\`, `)`, `\)`).Replace(u)
}
