package mailer

import (
	"bytes"
	"html/template"
)

var reviewOTPTemplate = template.Must(template.New("review_otp").Parse(`
<div style="font-family: Arial; padding: 20px;">
  <h2 style="color: #4f46e5;">OTP Verification Required</h2>
  <p>Hello <strong>{{.Name}}</strong>,</p>
  <p>You have initiated a review for the assignment:</p>
  <p><strong>{{.Title}}</strong></p>
  <p>Your One-Time Password (OTP) for verification is:</p>
  <div style="font-size: 28px; font-weight: bold; color: #1d4ed8; letter-spacing: 4px; margin: 20px 0;">{{.Code}}</div>
  <p>This OTP is valid for <strong>{{.Minutes}} minutes</strong>.</p>
  <p>If you did not request this, please ignore the email.</p>
  <p style="margin-top: 25px;">Regards,<br/>UNIcore Team</p>
</div>`))

var decisionTemplate = template.Must(template.New("decision").Parse(`
<div style="font-family: Arial; padding: 20px;">
  <h2 style="color: {{if .Approved}}#16a34a{{else}}#dc2626{{end}};">Assignment {{if .Approved}}Approved{{else}}Rejected{{end}}</h2>
  <p>Hello <strong>{{.Name}}</strong>,</p>
  <p>Your assignment <strong>{{.Title}}</strong> has been {{if .Approved}}approved{{else}}rejected{{end}} by {{.ReviewerName}}.</p>
  <p><strong>Remarks:</strong> {{.Remark}}</p>
  <p style="margin-top: 25px;">Regards,<br/>UNIcore Team</p>
</div>`))

type otpTemplateData struct {
	Name    string
	Title   string
	Code    string
	Minutes int
}

type decisionTemplateData struct {
	Name         string
	Title        string
	ReviewerName string
	Remark       string
	Approved     bool
}

// ReviewOTPEmail renders the confirmation-code message sent to a professor
// who initiated a review decision.
func ReviewOTPEmail(to, name, title, code string, validMinutes int) Message {
	var body bytes.Buffer
	_ = reviewOTPTemplate.Execute(&body, otpTemplateData{Name: name, Title: title, Code: code, Minutes: validMinutes})

	return Message{
		To:      to,
		Subject: "Review Verification Code",
		HTML:    body.String(),
	}
}

// DecisionEmail renders the approval or rejection message sent to a student.
func DecisionEmail(to, name, title, reviewerName, remark string, approved bool) Message {
	var body bytes.Buffer
	_ = decisionTemplate.Execute(&body, decisionTemplateData{
		Name:         name,
		Title:        title,
		ReviewerName: reviewerName,
		Remark:       remark,
		Approved:     approved,
	})

	subject := "Your Assignment Has Been Approved"
	if !approved {
		subject = "Your Assignment Was Rejected"
	}

	return Message{To: to, Subject: subject, HTML: body.String()}
}
