package web

import (
	"html/template"
	"io"
	"time"

	"github.com/sweeney/button-kbd/internal/logic"
	"github.com/sweeney/button-kbd/internal/status"
)

const stamp = "2006-01-02T15:04:05Z"

// mqttScript is the browser MQTT client used for live updates.
const mqttScript = "https://unpkg.com/mqtt@5/dist/mqtt.min.js"

// lineRow is one row of the lines table.
type lineRow struct {
	logic.LineCounts
	Keys string
}

// page is the view model behind indexHTML.
type page struct {
	Rows      []lineRow
	LastLine  int
	LastPress string
	Baseline  string
	Resets    int
	MQTT      string
	Uptime    string
	Started   string
	Config    status.Config
	Script    string
}

func newPage(snap status.Snapshot) page {
	p := page{
		Baseline: snap.Baseline.UTC().Format(stamp),
		Resets:   snap.Counts.ClockResets,
		Uptime:   snap.Uptime().Round(time.Second).String(),
		Started:  snap.StartTime.UTC().Format(stamp),
		Config:   snap.Config,
		MQTT:     "disabled",
		Script:   mqttScript,
	}
	for _, lc := range snap.Counts.Lines {
		keys, ok := snap.Config.Keys[lc.Line]
		if !ok {
			keys = "unmapped"
		}
		p.Rows = append(p.Rows, lineRow{LineCounts: lc, Keys: keys})
	}
	if snap.LastPress != nil {
		p.LastLine = snap.LastPress.Line
		p.LastPress = snap.LastPress.Time.UTC().Format(stamp)
	}
	switch {
	case snap.Config.Broker == "":
	case snap.MQTTConnected:
		p.MQTT = "connected"
	default:
		p.MQTT = "disconnected"
	}
	return p
}

var indexTmpl = template.Must(template.New("index").Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Button Keyboard</title>
<style>
body { font-family: sans-serif; max-width: 52em; margin: 1.5em auto; padding: 0 1em; color: #222; }
table { border-collapse: collapse; margin: 0.5em 0 1.5em; }
th, td { padding: 3px 10px; border: 1px solid #ccc; text-align: left; }
th { background: #f4f4f4; }
td.n { text-align: right; }
.connected { color: #060; }
.disconnected { color: #a00; }
.disabled, .muted { color: #888; }
.live { display: inline-block; width: 0.5em; height: 0.5em; border-radius: 50%; margin-left: 0.4em; vertical-align: middle; background: #888; }
.live.ok { background: #060; }
.live.err { background: #a00; }
</style>
</head>
<body>
<h1>Button Keyboard{{if .Config.WSBroker}}<span id="live" class="live" title="connecting" data-ws="{{.Config.WSBroker}}" data-topic="{{.Config.EventsTopic}}"></span>{{end}}</h1>

<table>
<tr><th>Line</th><th>Keys</th><th>Dispatched</th><th>Accepted</th><th>Bounced</th><th>Suppressed</th><th>Wrong edge</th><th>Bad reads</th><th>Failed</th></tr>
{{- range .Rows}}
<tr><td>{{.Line}}</td><td>{{.Keys}}</td><td class="n" id="dispatched-{{.Line}}">{{.Dispatched}}</td><td class="n">{{.Accepted}}</td><td class="n">{{.Bounced}}</td><td class="n">{{.Suppressed}}</td><td class="n">{{.WrongEdge}}</td><td class="n">{{.BadReads}}</td><td class="n">{{.Failed}}</td></tr>
{{- end}}
</table>
<p id="last-press">{{with .LastPress}}Last press: line {{$.LastLine}} at {{.}}{{else}}<span class="muted">No presses yet</span>{{end}}</p>

<table>
<tr><th>Clock baseline</th><td>{{.Baseline}} ({{.Resets}} resets)</td></tr>
<tr><th>MQTT</th><td><span class="{{.MQTT}}">{{.MQTT}}</span>{{with .Config.Broker}} {{.}}{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
<tr><th>Uptime</th><td>{{.Uptime}} since {{.Started}}</td></tr>
</table>

<table>
<tr><th>GPIO backend</th><td>{{.Config.Backend}}</td></tr>
<tr><th>Device</th><td>{{.Config.Device}}</td></tr>
<tr><th>Trigger</th><td>{{.Config.Trigger}}</td></tr>
<tr><th>Bounce / startup / settle</th><td>{{.Config.BounceMs}}ms / {{.Config.StartupMs}}ms / {{.Config.SettleMs}}ms</td></tr>
<tr><th>Clock jump</th><td>{{if .Config.ClockJumpS}}{{.Config.ClockJumpS}}s{{else}}disabled{{end}}</td></tr>
<tr><th>Heartbeat</th><td>{{if .Config.HeartbeatMs}}{{.Config.HeartbeatMs}}ms{{else}}disabled{{end}}</td></tr>
</table>

<p><a href="/index.json">index.json</a></p>
{{- if .Config.WSBroker}}
<script src="{{.Script}}"></script>
<script>
(function() {
  var dot = document.getElementById("live");
  var last = document.getElementById("last-press");

  function setDot(cls, title) {
    dot.className = "live " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(dot.dataset.ws, { reconnectPeriod: 5000 });
  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(dot.dataset.topic);
  });
  client.on("reconnect", function() { setDot("", "reconnecting"); });
  client.on("offline", function() { setDot("err", "offline"); });
  client.on("error", function() { setDot("err", "error"); });

  client.on("message", function(topic, payload) {
    try {
      var b = JSON.parse(payload.toString()).button;
      if (!b) { return; }
      var cell = document.getElementById("dispatched-" + b.line);
      if (cell) { cell.textContent = String(Number(cell.textContent) + 1); }
      last.textContent = "Last press: line " + b.line + " at " + b.timestamp;
    } catch (e) {}
  });
})();
</script>
{{- end}}
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	return indexTmpl.Execute(w, newPage(snap))
}
