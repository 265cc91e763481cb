package checkout

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"sort"

	"github.com/FulloMyself/tasselgroupreact/internal/domain"
)

var redirectPage = template.Must(template.New("redirect").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Redirecting to payment</title>
</head>
{{- if .Fields}}
<body onload="document.forms[0].submit()">
<form method="POST" action="{{.GatewayURL}}">
{{- range .Fields}}
<input type="hidden" name="{{.Name}}" value="{{.Value}}">
{{- end}}
<noscript><button type="submit">Continue to payment</button></noscript>
</form>
</body>
{{- else}}
<body>
<script>window.location.replace({{.GatewayURL}});</script>
<a href="{{.GatewayURL}}">Continue to payment</a>
</body>
{{- end}}
</html>
`))

type formField struct {
	Name  string
	Value string
}

// FormRedirector writes a self-submitting HTML page that hands the browser
// over to the gateway: a form POST when there are fields, a navigation
// otherwise.
type FormRedirector struct {
	Out io.Writer
}

// Redirect renders the page for r.
func (f *FormRedirector) Redirect(_ context.Context, r *domain.PaymentRedirect) error {
	if f.Out == nil {
		return fmt.Errorf("redirector has no output")
	}
	if r == nil || r.GatewayURL == "" {
		return fmt.Errorf("redirect has no gateway URL")
	}
	return RenderRedirect(f.Out, r)
}

// RenderRedirect writes the hand-off page for r to w. Fields are emitted in
// name order.
func RenderRedirect(w io.Writer, r *domain.PaymentRedirect) error {
	names := make([]string, 0, len(r.FormFields))
	for name := range r.FormFields {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]formField, 0, len(names))
	for _, name := range names {
		fields = append(fields, formField{Name: name, Value: r.FormFields[name]})
	}

	data := struct {
		GatewayURL string
		Fields     []formField
	}{r.GatewayURL, fields}

	if err := redirectPage.Execute(w, data); err != nil {
		return fmt.Errorf("render redirect: %w", err)
	}
	return nil
}
