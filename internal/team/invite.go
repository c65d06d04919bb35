package team

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/alecgard/okrtracker/internal/mail"
)

var invitationHTML = template.Must(template.New("invitation").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
    <p>You've been invited to join the team <strong>{{.TeamName}}</strong>.</p>
    <p>Click the button below to create your account and join the team.</p>
    <p style="margin: 24px 0;">
        <a href="{{.Link}}" style="background: #2563eb; color: #fff; padding: 12px 24px; border-radius: 6px; text-decoration: none;">Accept Invitation</a>
    </p>
    <p>If the button doesn't work, copy and paste this link into your browser:<br>{{.Link}}</p>
    <p>This invitation will expire on {{.ExpiresAt}}.</p>
</body>
</html>`))

func invitationMessage(inv *Invitation, link string) (mail.Message, error) {
	data := struct {
		Subject   string
		TeamName  string
		Link      string
		ExpiresAt string
	}{
		Subject:   fmt.Sprintf("You're invited to join %s", inv.TeamName),
		TeamName:  inv.TeamName,
		Link:      link,
		ExpiresAt: inv.ExpiresAt.UTC().Format(time.RFC3339),
	}

	var body bytes.Buffer
	if err := invitationHTML.Execute(&body, data); err != nil {
		return mail.Message{}, fmt.Errorf("rendering invitation email: %w", err)
	}
	return mail.Message{
		To:      inv.Email,
		Subject: data.Subject,
		Text:    fmt.Sprintf("You've been invited to join %s. Use this link: %s", inv.TeamName, link),
		HTML:    body.String(),
	}, nil
}
