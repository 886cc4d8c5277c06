package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// DefaultSMSTemplate — текст SMS по умолчанию.
const DefaultSMSTemplate = `Reminder: event at {{ clock .DueAt }}{{ with .Folder }} ({{ . }}){{ end }}`

// templateFuncs — дополнительные функции для шаблонов.
var templateFuncs = template.FuncMap{
	// default — возвращает значение по умолчанию, если второй аргумент пустой
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},

	// clock — время в часовом поясе уведомления, "15:04"
	"clock": func(t time.Time) string {
		return t.Format("15:04")
	},

	// date — дата и время по layout
	"date": func(layout string, t time.Time) string {
		return t.Format(layout)
	},

	"lower": strings.ToLower,
	"upper": strings.ToUpper,
	"trim":  strings.TrimSpace,
}

// MessageTemplate — шаблон текста уведомления.
//
// Шаблон получает Notification:
//
//	{{ .EventID }} {{ clock .DueAt }} {{ .Timezone }}
type MessageTemplate struct {
	tmpl *template.Template
	raw  string
}

// ParseTemplate разбирает шаблон. Пустая строка — DefaultSMSTemplate.
func ParseTemplate(text string) (*MessageTemplate, error) {
	if text == "" {
		text = DefaultSMSTemplate
	}
	t, err := template.New("message").Funcs(templateFuncs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}
	return &MessageTemplate{tmpl: t, raw: text}, nil
}

// MustParseTemplate разбирает шаблон и паникует при ошибке.
// Используется только для констант и тестов.
func MustParseTemplate(text string) *MessageTemplate {
	t, err := ParseTemplate(text)
	if err != nil {
		panic(err)
	}
	return t
}

// Render рендерит текст уведомления.
func (m *MessageTemplate) Render(n *Notification) (string, error) {
	if !strings.Contains(m.raw, "{{") {
		return m.raw, nil
	}

	var buf bytes.Buffer
	if err := m.tmpl.Execute(&buf, n); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}
	return buf.String(), nil
}
