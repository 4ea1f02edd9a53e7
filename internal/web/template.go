package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/ferment-controller/internal/status"
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
	"temp": func(s *string) string {
		if s == nil {
			return "n/a"
		}
		return *s + " °C"
	},
	"onoff": func(b bool) string {
		if b {
			return "ON"
		}
		return "OFF"
	},
	"css": func(s string) template.CSS {
		return template.CSS(s)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Fermentation Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.state { font-weight: bold; padding: 2px 8px; border-radius: 4px; color: #fff; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.fault { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; background: orange; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
</style>
</head>
<body>
<h1>Fermentation Controller<span id="live-dot" class="live-dot" title="connecting"></span></h1>

<h2>Control</h2>
<table>
<tr><th>State</th><td><span id="state" class="state" style="background: {{css .Status.Colour}}">{{.Status.State}}</span></td></tr>
<tr><th>Mode</th><td id="mode">{{.Status.Mode}}</td></tr>
<tr><th>Beer</th><td id="beer" style="color: {{css .Status.Deviation}}">{{temp .Status.Beer.Temp}}</td></tr>
<tr><th>Beer setting</th><td id="beer-set">{{temp .Status.Beer.Setpoint}}</td></tr>
<tr><th>Fridge</th><td id="fridge">{{temp .Status.Fridge.Temp}}</td></tr>
<tr><th>Fridge setting</th><td id="fridge-set">{{temp .Status.Fridge.Setpoint}}</td></tr>
<tr><th>Room</th><td id="room">{{temp .Status.Room.Temp}}</td></tr>
<tr><th>Beer slope</th><td id="slope">{{.Status.Beer.Slope}} °C/h</td></tr>
{{if .Status.WaitSeconds}}<tr><th>Waiting</th><td>{{.Status.WaitSeconds}}s</td></tr>{{end}}
</table>

<h2>Outputs</h2>
<table>
<tr><th>Heater</th><td id="heater" class="{{if .Status.Outputs.Heater}}on{{else}}off{{end}}">{{onoff .Status.Outputs.Heater}}</td></tr>
<tr><th>Cooler</th><td id="cooler" class="{{if .Status.Outputs.Cooler}}on{{else}}off{{end}}">{{onoff .Status.Outputs.Cooler}}</td></tr>
<tr><th>Fan</th><td>{{onoff .Status.Outputs.Fan}}</td></tr>
{{if .Status.Door.Attached}}<tr><th>Door</th><td>{{if .Status.Door.Open}}open{{else}}closed{{end}}</td></tr>{{end}}
<tr><th>Heat cycles</th><td>{{.Status.Cycles.Heat}}</td></tr>
<tr><th>Cool cycles</th><td>{{.Status.Cycles.Cool}}</td></tr>
</table>

<h2>Faults</h2>
<table>
<tr><th>Sensor</th><td class="{{if .Status.Faults.SensorFault}}fault{{end}}">{{if .Status.Faults.SensorFault}}FAULT{{else}}ok{{end}} ({{.Status.Faults.InvalidReadings}} invalid readings)</td></tr>
<tr><th>Storage</th><td class="{{if .Status.Faults.StorageFault}}fault{{end}}">{{if .Status.Faults.StorageFault}}FAULT{{else}}ok{{end}} ({{.Status.Faults.StorageFailures}} failed writes)</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .Status.MQTT.Connected}}connected{{else}}disconnected{{end}}">{{if .Status.MQTT.Connected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Status.Config.Broker}}</td></tr>
{{if .Status.Network}}<tr><th>Network</th><td>{{.Status.Network.Status}} ({{.Status.Network.Type}}{{if .Status.Network.SSID}}, {{.Status.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Status.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.Status.StartTime}}</td></tr>
<tr><th>Tick</th><td>{{.Status.Config.TickMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Status.Config.HeartbeatMs 0}}disabled{{else}}{{.Status.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Status.Config.HTTPAddr}}</td></tr>
{{if .Status.Config.Simulate}}<tr><th>Simulation</th><td>yes</td></tr>{{end}}
</table>

<p><a href="/index.json">JSON</a> | <a href="/history.json">History</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  function text(id, v) { document.getElementById(id).textContent = v; }
  function temp(v) { return v === null ? "n/a" : v + " °C"; }
  function output(id, on) {
    var el = document.getElementById(id);
    el.textContent = on ? "ON" : "OFF";
    el.className = on ? "on" : "off";
  }

  var source = new EventSource("/events");
  source.onopen = function() { dot.className = "live-dot ok"; dot.title = "live"; };
  source.onerror = function() { dot.className = "live-dot err"; dot.title = "offline"; };
  source.addEventListener("status", function(e) {
    try {
      var s = JSON.parse(e.data).status;
      var state = document.getElementById("state");
      state.textContent = s.state;
      state.style.background = s.colour;
      text("mode", s.mode);
      text("beer", temp(s.beer.temp));
      document.getElementById("beer").style.color = s.deviation_colour;
      text("beer-set", temp(s.beer.setpoint === undefined ? null : s.beer.setpoint));
      text("fridge", temp(s.fridge.temp));
      text("fridge-set", temp(s.fridge.setpoint === undefined ? null : s.fridge.setpoint));
      text("room", temp(s.room.temp));
      text("slope", s.beer.slope + " °C/h");
      output("heater", s.outputs.heater);
      output("cooler", s.outputs.cooler);
    } catch (err) {}
  });
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	data := struct {
		Status status.StatusInner
		Uptime time.Duration
	}{
		Status: status.Inner(snap),
		Uptime: snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
