package notify

import (
	"bytes"
	"html/template"
	texttemplate "text/template"
)

type mailData struct {
	Name string
	URL  string
}

type mailTemplate struct {
	subject string
	html    *template.Template
	text    *texttemplate.Template
}

const layout = `<html>
  <body style="font-family: Arial, sans-serif; background-color: #f7f9fc; padding: 40px;">
    <div style="max-width: 480px; background: #ffffff; margin: auto; border-radius: 12px; padding: 30px;">
      {{block "content" .}}{{end}}
      <hr style="border: none; border-top: 1px solid #eee; margin: 25px 0;">
      <p style="color: #777; font-size: 13px; text-align: center;">The Plaze support team</p>
    </div>
  </body>
</html>`

func mustTemplate(subject, content, text string) mailTemplate {
	h := template.Must(template.New("layout").Parse(layout))
	template.Must(h.New("content").Parse(content))
	return mailTemplate{
		subject: subject,
		html:    h,
		text:    texttemplate.Must(texttemplate.New("text").Parse(text)),
	}
}

var (
	lockTemplate = mustTemplate("Your Plaze account was temporarily locked",
		`<h2 style="color: #d93025;">Account temporarily locked</h2>
<p>Hello <b>{{.Name}}</b>,</p>
<p>Your account was locked for 15 minutes after several failed sign-in attempts.</p>
<p>Resetting your password unlocks it right away:</p>
<p style="text-align: center;"><a href="{{.URL}}">Reset password</a></p>
<p style="color: #555; font-size: 14px;">If these attempts were not yours, change your password now. The link expires in one hour.</p>`,
		`Hello {{.Name}},

Your account was locked for 15 minutes after several failed sign-in attempts.
Resetting your password unlocks it right away: {{.URL}}

The link expires in one hour.
`)

	recoveryTemplate = mustTemplate("Reset your Plaze password",
		`<h2>Password recovery</h2>
<p>Hello <b>{{.Name}}</b>,</p>
<p>We received a request to reset your password.</p>
<p style="text-align: center;"><a href="{{.URL}}">Choose a new password</a></p>
<p style="color: #555; font-size: 14px;">The link expires in one hour. If you did not ask for it, ignore this email.</p>`,
		`Hello {{.Name}},

Use this link to choose a new password: {{.URL}}

The link expires in one hour. If you did not ask for it, ignore this email.
`)

	verifyTemplate = mustTemplate("Confirm your Plaze email",
		`<h2>Welcome to Plaze</h2>
<p>Hello <b>{{.Name}}</b>,</p>
<p>Please confirm your email address.</p>
<p style="text-align: center;"><a href="{{.URL}}">Confirm email</a></p>`,
		`Hello {{.Name}},

Please confirm your email address: {{.URL}}
`)
)

func (t mailTemplate) render(d mailData) (html, text string, err error) {
	var hb, tb bytes.Buffer
	if err := t.html.ExecuteTemplate(&hb, "layout", d); err != nil {
		return "", "", err
	}
	if err := t.text.Execute(&tb, d); err != nil {
		return "", "", err
	}
	return hb.String(), tb.String(), nil
}
