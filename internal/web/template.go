package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/watt-watcher/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stamp": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
	"watts": func(v float64) string {
		return fmt.Sprintf("%.1f W", v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>{{.Config.Watcher.Name}} - Watt Watcher</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.running { color: green; font-weight: bold; }
.finished { color: #06c; font-weight: bold; }
.idle { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>{{.Config.Watcher.Name}}</h1>

<h2>State</h2>
<table>
<tr><th>Phase</th><td id="phase" class="{{.Phase}}">{{.Phase}}</td></tr>
<tr><th>Power</th><td>{{watts .Power}}</td></tr>
<tr><th>Plug</th><td>{{if .Config.Watcher.SwitchStateID}}{{if .PlugOn}}on{{else}}off{{end}}{{else}}no switch{{end}}</td></tr>
<tr><th>Above start</th><td>{{.Counters.AboveStart}} / {{.Config.Watcher.StartCounterLimit}}</td></tr>
<tr><th>Below stop</th><td>{{.Counters.BelowStop}} / {{.Config.Watcher.StopCounterLimit}}</td></tr>
<tr><th>Last start</th><td>{{stamp .LastStart}}</td></tr>
<tr><th>Last end</th><td>{{stamp .LastEnd}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Store</th><td>{{.Config.Store}}</td></tr>
<tr><th>Connected</th><td class="{{if .StoreConnected}}connected{{else}}disconnected{{end}}">{{if .StoreConnected}}connected{{else}}disconnected{{end}}</td></tr>
{{if .Config.Broker}}<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Started</th><td>{{.Counts.Started}}</td></tr>
<tr><th>Finished</th><td>{{.Counts.Finished}}</td></tr>
<tr><th>Reset</th><td>{{.Counts.Reset}}</td></tr>
<tr><th>Auto-off</th><td>{{.Counts.AutoOff}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{stamp .StartTime}}</td></tr>
<tr><th>Ticks</th><td>{{.Ticks}}</td></tr>
<tr><th>Interval</th><td>{{.Interval}}</td></tr>
<tr><th>Thresholds</th><td>start &gt; {{.Config.Watcher.StartThresholdWatt}} W, stop &lt; {{.Config.Watcher.StopThresholdWatt}} W</td></tr>
<tr><th>Auto-off</th><td>{{if .Config.Watcher.SwitchOffAfterFinished}}after {{.Config.Watcher.AutoOffCounterLimit}} samples{{else}}disabled{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">Metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime   time.Duration
		Interval time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Interval: snap.Config.Watcher.Interval(),
	}
	indexTmpl.Execute(w, data)
}
