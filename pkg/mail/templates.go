package mail

import (
	"bytes"
	"fmt"
	"html/template"
)

// Template names rendered by Render.
const (
	TemplateVerification      = "verification"
	TemplateWelcome           = "welcome"
	TemplateLoginNotification = "login_notification"
)

// TemplateData is the model passed to every template.
type TemplateData struct {
	Name    string
	Link    string
	Product string
}

var subjects = map[string]string{
	TemplateVerification:      "Verify Your Email Address - %s",
	TemplateWelcome:           "Welcome to %s!",
	TemplateLoginNotification: "Login Successful ✅",
}

var templates = template.Must(template.New("mail").Funcs(template.FuncMap{
	"greeting": func(name string) string {
		if name == "" {
			return "there"
		}
		return name
	},
}).Parse(`
{{define "verification"}}<div style="font-family: Arial, sans-serif; line-height: 1.6; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #333;">Verify Your Email Address</h2>
  <p>Hello {{greeting .Name}},</p>
  <p>Thank you for signing up with <b>{{.Product}}</b>! Please verify your email address to complete your registration and access all features.</p>
  <div style="text-align: center; margin: 30px 0;">
    <a href="{{.Link}}" style="background-color: #007bff; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; display: inline-block;">Verify Email Address</a>
  </div>
  <p>Or copy and paste this link in your browser:</p>
  <p style="word-break: break-all; color: #007bff;">{{.Link}}</p>
  <p>This verification link will expire in 24 hours.</p>
  <hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;" />
  <p style="font-size: 0.9em; color: #555;">If you didn't create an account with {{.Product}}, please ignore this email.</p>
</div>{{end}}
{{define "welcome"}}<div style="font-family: Arial, sans-serif; line-height: 1.6;">
  <h2>Welcome to {{.Product}} 🎉</h2>
  <p>Hello {{greeting .Name}},</p>
  <p>Your email has been successfully verified! Welcome to <b>{{.Product}}</b>.</p>
  <p>We're excited to have you onboard and can't wait to see what you'll accomplish.</p>
  <hr/>
  <p style="font-size:0.9em;color:#555;">Sent automatically by the {{.Product}} System</p>
</div>{{end}}
{{define "login_notification"}}<div style="font-family: Arial, sans-serif; line-height: 1.6;">
  <h2>Hello {{greeting .Name}},</h2>
  <p>You just signed in to your <b>{{.Product}}</b> account using Google.</p>
  <p>If this wasn't you, please secure your account immediately.</p>
  <hr/>
  <p style="font-size:0.9em;color:#555;">Sent automatically by the {{.Product}} System</p>
</div>{{end}}
`))

// Render builds an HTML message for one recipient from a named template.
func Render(name, to string, data TemplateData) (Message, error) {
	subject, ok := subjects[name]
	if !ok {
		return Message{}, fmt.Errorf("mail: unknown template %q", name)
	}
	if data.Product == "" {
		data.Product = "Twenty Five"
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return Message{}, fmt.Errorf("mail: render %s: %w", name, err)
	}

	if name != TemplateLoginNotification {
		subject = fmt.Sprintf(subject, data.Product)
	}

	return Message{
		To:      []string{to},
		Subject: subject,
		Body:    buf.String(),
		HTML:    true,
	}, nil
}
