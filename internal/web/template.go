package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/vevorbus/vevor-bus/internal/protocol"
	"github.com/vevorbus/vevor-bus/internal/status"
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
	"hex": func(v *protocol.Value) string {
		if v == nil {
			return "none"
		}
		if v.Kind == protocol.KindWord {
			return fmt.Sprintf("0x%04X (%d)", v.Word, v.Word)
		}
		return fmt.Sprintf("0x%02X (%d)", v.Byte, v.Byte)
	},
	"sent": func(b *byte) string {
		if b == nil {
			return "none"
		}
		return fmt.Sprintf("0x%02X", *b)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Vevor Bus</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Vevor Bus{{if .Live}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>Values</h2>
<table>
<tr><th>Last byte</th><td id="last-byte">{{hex .LastByte}}</td></tr>
<tr><th>Last word</th><td id="last-word">{{hex .LastWord}}</td></tr>
<tr><th>Transmitted</th><td>{{.Transmitted}} (last {{sent .LastSent}})</td></tr>
</table>

<form method="post" action="/send">
<input name="value" placeholder="0xA5" size="6"> <button type="submit">Send</button>
</form>

<h2>Decoder</h2>
<table>
<tr><th>Pulses</th><td>{{.Stats.Pulses}}</td></tr>
<tr><th>Discarded</th><td>{{.Stats.Discarded}}</td></tr>
<tr><th>Frames</th><td>{{.Stats.Frames}}</td></tr>
<tr><th>Truncated</th><td>{{.Stats.Truncated}}</td></tr>
<tr><th>Bytes / Words</th><td>{{.Stats.Bytes}} / {{.Stats.Words}}</td></tr>
<tr><th>Suppressed</th><td>{{.Stats.Suppressed}}</td></tr>
<tr><th>Spurious words</th><td>{{.Stats.SpuriousWords}}</td></tr>
<tr><th>Dropped</th><td>{{.Dropped}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Config.NATS}}<tr><th>NATS</th><td>{{.Config.NATS}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>GPIO</th><td>{{.Config.Chip}} rx {{.Config.RXPin}} tx {{.Config.TXPin}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
{{if .Live}}
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var cells = { BYTE: document.getElementById("last-byte"), WORD: document.getElementById("last-word") };

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(e) {
      try {
        var msg = JSON.parse(e.data);
        if (msg.vevor && cells[msg.vevor.kind]) {
          cells[msg.vevor.kind].textContent = msg.vevor.hex + " (" + msg.vevor.value + ")";
        }
      } catch (err) {}
    };
  }
  connect();
})();
</script>
{{end}}
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, live bool) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Live   bool
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Live:     live,
	}
	indexTmpl.Execute(w, data)
}
