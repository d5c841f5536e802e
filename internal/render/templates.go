package render

import (
	"encoding/xml"
	"strings"
	"text/template"
)

const propertiesTemplate = `{{define "properties"}}
{{- range .}}
<property>
 <name>{{xml .Name}}</name>
 <value>{{xml .Value}}</value>
{{- with .Description}}
 <description>{{xml .}}</description>
{{- end}}
</property>
{{- end}}
{{end}}`

const siteTemplates = `
{{define "core"}}<?xml version="1.0" encoding="UTF-8"?>
<?xml-stylesheet type="text/xsl" href="configuration.xsl"?>
<configuration>{{template "properties" .}}</configuration>
{{end}}

{{define "mapred"}}<?xml version="1.0"?>
<?xml-stylesheet type="text/xsl" href="configuration.xsl"?>
<configuration>{{template "properties" .}}</configuration>
{{end}}

{{define "hdfs"}}<?xml version="1.0" encoding="UTF-8"?>
<?xml-stylesheet type="text/xsl" href="configuration.xsl"?>
<configuration>{{template "properties" .}}</configuration>
{{end}}

{{define "yarn"}}<?xml version="1.0"?>
<configuration>{{template "properties" .}}</configuration>
{{end}}

{{define "slaves"}}{{range .}}{{.}}
{{end}}{{end}}
`

var templates = template.Must(
	template.New("site").
		Funcs(template.FuncMap{"xml": escapeXML}).
		Parse(propertiesTemplate + siteTemplates),
)

func escapeXML(s string) string {
	var b strings.Builder
	// Writes to a strings.Builder cannot fail.
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
