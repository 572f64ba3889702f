package export

import (
	"bytes"
	"html/template"
	"time"
)

var summaryTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			return t.Format("Jan 2, 2006")
		},
		"formatDatePtr": func(t *time.Time) string {
			if t == nil {
				return ""
			}
			return t.Format("Jan 2, 2006")
		},
	}
	summaryTemplate = template.Must(template.New("summary").Funcs(funcMap).Parse(summaryTemplateHTML))
}

// TemplateData holds data for patient summary rendering
type TemplateData struct {
	PracticeName string
	PatientName  string
	IDNumber     string
	BirthDate    *time.Time
	Notes        string
	GeneratedAt  time.Time
	Sessions     []TemplateSession
	Interviews   []TemplateInterview
	Attempts     []TemplateAttempt
}

type TemplateSession struct {
	Title     string
	StartedAt time.Time
	EndedAt   *time.Time
	Notes     string
}

type TemplateInterview struct {
	Title       string
	StartedAt   time.Time
	CompletedAt *time.Time
	Summary     string
}

type TemplateAttempt struct {
	TestName    string
	Status      string
	Score       string
	CompletedAt *time.Time
}

// RenderSummaryHTML renders the patient summary template with provided data
func RenderSummaryHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := summaryTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const summaryTemplateHTML = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.PatientName}}</title>
    <style>
        body { font-family: Georgia, 'Times New Roman', serif; line-height: 1.5; color: #222; margin: 0; padding: 0; }
        .header { border-bottom: 3px solid #2a7f62; padding-bottom: 12px; margin-bottom: 24px; }
        .header h1 { margin: 0 0 4px 0; font-size: 22pt; }
        .meta { color: #555; font-size: 10pt; }
        h2 { font-size: 14pt; border-bottom: 1px solid #ccc; padding-bottom: 4px; margin-top: 28px; }
        .entry { margin-bottom: 16px; page-break-inside: avoid; }
        .entry-title { font-weight: bold; }
        .entry-date { color: #666; font-size: 9pt; }
        .entry-body { margin-top: 4px; font-size: 10pt; white-space: pre-wrap; }
        .empty { color: #888; font-style: italic; font-size: 10pt; }
        table { width: 100%; border-collapse: collapse; font-size: 10pt; }
        th, td { text-align: left; padding: 6px 8px; border-bottom: 1px solid #eee; }
        th { background: #f6f6f6; }
        .footer { margin-top: 40px; padding-top: 12px; border-top: 1px solid #ccc; color: #888; font-size: 8pt; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.PatientName}}</h1>
        <div class="meta">
            {{if .IDNumber}}ID: {{.IDNumber}} &middot; {{end}}
            {{if .BirthDate}}Born {{formatDatePtr .BirthDate}} &middot; {{end}}
            {{.PracticeName}}
        </div>
    </div>

    {{if .Notes}}
    <h2>Clinical Notes</h2>
    <div class="entry-body">{{.Notes}}</div>
    {{end}}

    <h2>Sessions</h2>
    {{if .Sessions}}
    {{range .Sessions}}
    <div class="entry">
        <span class="entry-title">{{.Title}}</span>
        <span class="entry-date">{{formatDate .StartedAt}}{{if .EndedAt}} &ndash; {{formatDatePtr .EndedAt}}{{end}}</span>
        {{if .Notes}}<div class="entry-body">{{.Notes}}</div>{{end}}
    </div>
    {{end}}
    {{else}}
    <p class="empty">No sessions recorded.</p>
    {{end}}

    <h2>Interviews</h2>
    {{if .Interviews}}
    {{range .Interviews}}
    <div class="entry">
        <span class="entry-title">{{.Title}}</span>
        <span class="entry-date">{{formatDate .StartedAt}}</span>
        {{if .Summary}}<div class="entry-body">{{.Summary}}</div>{{end}}
    </div>
    {{end}}
    {{else}}
    <p class="empty">No interviews recorded.</p>
    {{end}}

    <h2>Test Results</h2>
    {{if .Attempts}}
    <table>
        <tr><th>Test</th><th>Status</th><th>Score</th><th>Completed</th></tr>
        {{range .Attempts}}
        <tr>
            <td>{{.TestName}}</td>
            <td>{{.Status}}</td>
            <td>{{.Score}}</td>
            <td>{{formatDatePtr .CompletedAt}}</td>
        </tr>
        {{end}}
    </table>
    {{else}}
    <p class="empty">No test attempts recorded.</p>
    {{end}}

    <div class="footer">
        Generated {{formatDate .GeneratedAt}} by Praxys. Confidential clinical record.
    </div>
</body>
</html>`
