package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) dashboard(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(dashboardHTML))
}

const dashboardHTML = `<!DOCTYPE html>
<html>
<head>
<title>SKR Swap Dashboard</title>
<style>
  body { font-family: Arial, sans-serif; margin: 20px; background: #1a1a1a; color: #fff; }
  .container { max-width: 1200px; margin: 0 auto; }
  h1 { color: #00d4aa; }
  h2 { color: #888; font-size: 1.1em; margin-top: 28px; }
  table { width: 100%; border-collapse: collapse; font-size: 0.9em; }
  th, td { text-align: left; padding: 6px 10px; border-bottom: 1px solid #333; }
  th { color: #00d4aa; }
  .COMPLETED { color: #4caf50; }
  .FAILED { color: #f44336; }
  .PENDING { color: #ff9800; }
  #live { color: #666; font-size: 0.8em; }
</style>
</head>
<body>
<div class="container">
  <h1>SKR Swap</h1>
  <span id="live">connecting…</span>
  <h2>Accounts</h2>
  <table id="accounts"><thead><tr><th>ID</th><th>Label</th><th>Pair</th><th>Enabled</th><th>Balances</th></tr></thead><tbody></tbody></table>
  <h2>Swaps</h2>
  <table id="swaps"><thead><tr><th>Time</th><th>Account</th><th>In</th><th>Out</th><th>Price</th><th>USD</th><th>Status</th><th>Signature</th></tr></thead><tbody></tbody></table>
  <h2>Signals</h2>
  <table id="signals"><thead><tr><th>Time</th><th>Action</th><th>Symbol</th><th>Kind</th><th>Price</th></tr></thead><tbody></tbody></table>
</div>
<script>
const fmt = v => v == null ? "–" : (typeof v === "number" ? v.toLocaleString(undefined, {maximumFractionDigits: 6}) : v);
async function refresh() {
  const [acRes, swRes, sgRes] = await Promise.all([
    fetch("/api/accounts"), fetch("/api/swaps?limit=50"), fetch("/api/signals?limit=30")
  ]);
  const ac = await acRes.json(), sw = await swRes.json(), sg = await sgRes.json();
  document.querySelector("#accounts tbody").innerHTML = (ac.accounts || []).map(a =>
    "<tr><td>" + a.id + "</td><td>" + a.label + "</td><td>" + a.pair + "</td><td>" + a.enabled +
    "</td><td>" + Object.entries(a.balances || {}).map(([t, b]) => t + ": " + fmt(b)).join(", ") + "</td></tr>").join("");
  document.querySelector("#swaps tbody").innerHTML = (sw.swaps || []).map(s =>
    "<tr><td>" + s.created_at + "</td><td>" + s.account_id + "</td><td>" + fmt(s.input_amount) + " " + s.input_token +
    "</td><td>" + fmt(s.output_amount) + " " + s.output_token + "</td><td>" + fmt(s.price) +
    "</td><td>" + fmt(s.output_usd) + "</td><td class='" + s.status + "'>" + s.status +
    "</td><td>" + (s.signature ? s.signature.slice(0, 16) + "…" : "–") + "</td></tr>").join("");
  document.querySelector("#signals tbody").innerHTML = (sg.signals || []).map(s =>
    "<tr><td>" + s.received_at + "</td><td>" + s.action + "</td><td>" + s.symbol + "</td><td>" + (s.kind || "–") +
    "</td><td>" + fmt(s.price) + "</td></tr>").join("");
}
refresh();
setInterval(refresh, 10000);
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onopen = () => { document.getElementById("live").textContent = "live"; };
ws.onclose = () => { document.getElementById("live").textContent = "disconnected"; };
ws.onmessage = () => refresh();
</script>
</body>
</html>
`
