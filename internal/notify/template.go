package notify

import (
	"bytes"
	"errors"
	"text/template"
)

// EventType names a notification.
type EventType string

const (
	EventStatusChanged      EventType = "ROBOT_STATUS_CHANGED"
	EventOffline            EventType = "ROBOT_OFFLINE"
	EventMedicationDeferred EventType = "MEDICATION_DEFERRED"
	EventEmergency          EventType = "EMERGENCY"
)

var defaultTemplates = map[EventType][2]string{
	EventStatusChanged: {
		`Robot {{.RobotName}} is {{.Connectivity}}`,
		`Robot {{.RobotName}} reported in at {{.OccurredAt}}.{{if .Battery}} Battery {{.Battery}}%.{{end}}`,
	},
	EventOffline: {
		`Robot {{.RobotName}} went offline`,
		`No contact from robot {{.RobotName}} for {{.OfflineFor}}. Last sync: {{if .LastSync}}{{.LastSync}}{{else}}never{{end}}.`,
	},
	EventMedicationDeferred: {
		`{{.ElderName}} postponed medication`,
		`{{.ElderName}} asked to take {{if .MedicationName}}{{.MedicationName}}{{else}}their medication{{end}} later.`,
	},
	EventEmergency: {
		`Emergency reported for {{.ElderName}}`,
		`Robot {{.RobotName}} detected an emergency{{if .Location}} in {{.Location}}{{end}} at {{.OccurredAt}}. Check on {{.ElderName}} now.`,
	},
}

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	RobotName      string
	ElderName      string
	Connectivity   string
	Battery        int
	OfflineFor     string
	LastSync       string
	MedicationName string
	Location       string
	OccurredAt     string
}

// Template renders the title and body of one event type.
type Template struct {
	title *template.Template
	body  *template.Template
}

// NewTemplate parses a title/body pair. Empty strings fall back to the default for t.
func NewTemplate(t EventType, title, body string) (*Template, error) {
	defaults, ok := defaultTemplates[t]
	if !ok {
		return nil, errors.New("notify template: unknown event type " + string(t))
	}
	if title == "" {
		title = defaults[0]
	}
	if body == "" {
		body = defaults[1]
	}
	parsedTitle, err := template.New(string(t) + "-title").Parse(title)
	if err != nil {
		return nil, err
	}
	parsedBody, err := template.New(string(t) + "-body").Parse(body)
	if err != nil {
		return nil, err
	}
	return &Template{title: parsedTitle, body: parsedBody}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, string, error) {
	if t == nil || t.title == nil || t.body == nil {
		return "", "", errors.New("notify template: nil")
	}
	var title, body bytes.Buffer
	if err := t.title.Execute(&title, data); err != nil {
		return "", "", err
	}
	if err := t.body.Execute(&body, data); err != nil {
		return "", "", err
	}
	return title.String(), body.String(), nil
}

func defaultTemplateSet() (map[EventType]*Template, error) {
	set := make(map[EventType]*Template, len(defaultTemplates))
	for t := range defaultTemplates {
		tpl, err := NewTemplate(t, "", "")
		if err != nil {
			return nil, err
		}
		set[t] = tpl
	}
	return set, nil
}
