package mail

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

//go:embed templates/*
var templateFS embed.FS

// Template names.
const (
	TemplateInvite = "invite"
	TemplateToday  = "today"
	TemplateVerify = "verify"
)

// InviteData fills the weekly invite.
type InviteData struct {
	EventDate string
	EventTime string
	RSVPLink  string
}

// TodayData fills the morning-of email.
type TodayData struct {
	RecipientName string
	EventTime     string
	EventLocation string
	BuzzInLink    string
	CancelLink    string
}

// VerifyData fills the address verification email.
type VerifyData struct {
	VerifyLink string
}

// Rendered is a template expanded into its three parts.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Render expands templates/<name>_subject.txt, <name>.html and
// <name>.txt with data.
func Render(name string, data any) (Rendered, error) {
	subject, err := renderText(name+"_subject.txt", data)
	if err != nil {
		return Rendered{}, fmt.Errorf("mail: render %s subject: %w", name, err)
	}
	html, err := renderHTML(name+".html", data)
	if err != nil {
		return Rendered{}, fmt.Errorf("mail: render %s html: %w", name, err)
	}
	text, err := renderText(name+".txt", data)
	if err != nil {
		return Rendered{}, fmt.Errorf("mail: render %s text: %w", name, err)
	}
	return Rendered{Subject: strings.TrimSpace(subject), HTML: html, Text: text}, nil
}

func renderHTML(file string, data any) (string, error) {
	t, err := htmltemplate.ParseFS(templateFS, "templates/"+file)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderText(file string, data any) (string, error) {
	t, err := texttemplate.ParseFS(templateFS, "templates/"+file)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
