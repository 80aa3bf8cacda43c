package main

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	bibinject "github.com/alnah/go-bibinject"
)

// maxUploadSize bounds uploaded .bib and template files.
const maxUploadSize = "4M"

// formTemplate is the upload form. The style dropdown is populated from the
// registry so the choices always match what the server can render.
var formTemplate = template.Must(template.New("form").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>bibinject</title>
</head>
<body>
<h1>bibinject</h1>
<form action="/convert" method="post" enctype="multipart/form-data">
  <p><label>BibTeX file: <input type="file" name="bib" required></label></p>
  <p><label>Target HTML (optional): <input type="file" name="template"></label></p>
  <p><label>Style:
    <select name="style">
    {{range .Styles}}<option value="{{.}}">{{.}}</option>
    {{end}}</select>
  </label></p>
  <p><label>Order:
    <select name="order">
      <option value="desc">desc</option>
      <option value="asc">asc</option>
    </select>
  </label></p>
  <p><label>Group by: <input type="text" name="group" placeholder="year"></label></p>
  <p><label>Target id: <input type="text" name="target-id" value="{{.TargetID}}"></label></p>
  <p><button type="submit">Convert</button></p>
</form>
</body>
</html>
`))

// previewTemplate wraps a sanitized fragment for in-browser preview.
var previewTemplate = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>bibinject preview</title>
</head>
<body>
<p><a href="/">&larr; back</a></p>
{{.Fragment}}
{{if .Warnings}}<hr><ul>
{{range .Warnings}}<li class="warning">{{.}}</li>
{{end}}</ul>{{end}}
</body>
</html>
`))

// webServer serves the upload form and conversion endpoint.
type webServer struct {
	svc      *bibinject.Service
	targetID string
	log      *zap.Logger
	policy   *bluemonday.Policy
}

// runWeb starts the web interface and blocks until the server stops.
func runWeb(addr string, svc *bibinject.Service, verbose bool) error {
	logger, err := newLogger(verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// Fragments come out of our own formatter, but they embed field values
	// from uploaded files; sanitize before echoing anything back.
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class", "id").Globally()

	ws := &webServer{
		svc:      svc,
		targetID: DefaultConfig().TargetID,
		log:      logger,
		policy:   policy,
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(maxUploadSize))
	e.Use(ws.requestLogger)

	e.GET("/", ws.handleIndex)
	e.POST("/convert", ws.handleConvert)

	logger.Info("starting web interface", zap.String("addr", addr))
	return e.Start(addr)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// requestLogger logs one line per request with method, path, status, and
// duration.
func (ws *webServer) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		ws.log.Info("request",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Request().URL.Path),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}

// handleIndex renders the upload form.
func (ws *webServer) handleIndex(c echo.Context) error {
	data := struct {
		Styles   []string
		TargetID string
	}{
		Styles:   ws.svc.Registry().Names(),
		TargetID: ws.targetID,
	}
	var buf bytes.Buffer
	if err := formTemplate.Execute(&buf, data); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

// handleConvert runs one conversion. With an uploaded target document the
// response is the injected document as a download; otherwise a sanitized
// fragment preview.
func (ws *webServer) handleConvert(c echo.Context) error {
	bibText, err := readUpload(c, "bib")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing or unreadable bib upload")
	}

	docText, _ := readUpload(c, "template") // optional

	input := bibinject.Input{
		BibTeX:   bibText,
		Document: docText,
		AnchorID: c.FormValue("target-id"),
		Style:    c.FormValue("style"),
		Order:    c.FormValue("order"),
		GroupBy:  c.FormValue("group"),
	}
	if input.AnchorID == "" {
		input.AnchorID = ws.targetID
	}

	result, err := ws.svc.Convert(c.Request().Context(), input)
	if err != nil {
		ws.log.Warn("conversion failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	ws.log.Info("converted",
		zap.String("style", input.Style),
		zap.Int("warnings", len(result.Warnings)),
		zap.Bool("injected", input.Document != ""),
	)

	if input.Document != "" {
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="injected.html"`)
		return c.HTML(http.StatusOK, result.Document)
	}

	warnings := make([]string, len(result.Warnings))
	for i, w := range result.Warnings {
		warnings[i] = w.String()
	}
	data := struct {
		Fragment template.HTML
		Warnings []string
	}{
		// Sanitized: the fragment embeds uploaded field values.
		Fragment: template.HTML(ws.policy.Sanitize(result.Fragment)), // #nosec G203 -- sanitized above
		Warnings: warnings,
	}
	var buf bytes.Buffer
	if err := previewTemplate.Execute(&buf, data); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

// readUpload reads one multipart file field into a string.
func readUpload(c echo.Context, field string) (string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return "", err
	}
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("empty upload %q", field)
	}
	return string(data), nil
}
