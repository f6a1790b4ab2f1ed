package server

// HTMLPage is the HTML content for the browser UI. It starts a loopback
// session, shows the raw and stabilized frames side by side and polls the
// session stats. window.vstab exposes the state for automated tests.
const HTMLPage = `<!DOCTYPE html>
<html>
<head>
    <title>vstab Loopback</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            max-width: 960px;
            margin: 50px auto;
            padding: 20px;
            background: #f5f5f5;
        }
        .container {
            background: white;
            padding: 30px;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
        }
        h1 { color: #333; margin-bottom: 10px; }
        .subtitle { color: #666; margin-bottom: 30px; }
        button {
            background: #4285f4;
            color: white;
            border: none;
            padding: 12px 24px;
            border-radius: 4px;
            cursor: pointer;
            font-size: 16px;
            margin-right: 10px;
        }
        button:hover { background: #3367d6; }
        button:disabled { background: #ccc; cursor: not-allowed; }
        button.stop { background: #ea4335; }
        button.stop:hover { background: #d93025; }
        #status {
            margin: 20px 0;
            padding: 15px;
            border-radius: 4px;
            font-weight: 500;
        }
        .status-waiting { background: #fff3cd; color: #856404; }
        .status-connected { background: #d4edda; color: #155724; }
        .status-error { background: #f8d7da; color: #721c24; }
        .frames { display: flex; gap: 20px; margin: 20px 0; }
        .frames figure { margin: 0; flex: 1; }
        .frames img { width: 100%; background: #000; image-rendering: pixelated; }
        table { border-collapse: collapse; width: 100%; }
        td { padding: 4px 8px; border-bottom: 1px solid #eee; font-family: monospace; }
        label { margin-right: 20px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>vstab Loopback</h1>
        <p class="subtitle">A shaky synthetic camera streamed over WebRTC and stabilized by the receiver's interceptor.</p>

        <button id="start" onclick="startSession()">Start Session</button>
        <button id="stop" class="stop" onclick="stopSession()" disabled>Stop</button>

        <div id="status" class="status-waiting">Idle</div>

        <div>
            <label>Smoothing frames <input id="smoothing" type="number" min="2" step="2" value="20"></label>
            <label>Margin <input id="margin" type="number" min="0.01" max="0.99" step="0.01" value="0.1"></label>
            <button id="apply" onclick="applyConfig()" disabled>Apply</button>
        </div>

        <div class="frames">
            <figure><img id="raw" alt="raw"><figcaption>Raw</figcaption></figure>
            <figure><img id="stable" alt="stabilized"><figcaption>Stabilized</figcaption></figure>
        </div>

        <table id="stats"></table>
    </div>

    <script>
        window.vstab = { sessionId: null, stats: null, error: null, framesLoaded: 0 };
        let timer = null;

        function setStatus(text, cls) {
            const el = document.getElementById('status');
            el.textContent = text;
            el.className = 'status-' + cls;
        }

        async function startSession() {
            document.getElementById('start').disabled = true;
            setStatus('Starting...', 'waiting');
            try {
                const resp = await fetch('/sessions', { method: 'POST' });
                if (!resp.ok) throw new Error(await resp.text());
                const body = await resp.json();
                window.vstab.sessionId = body.id;
                document.getElementById('stop').disabled = false;
                document.getElementById('apply').disabled = false;
                timer = setInterval(poll, 500);
            } catch (err) {
                window.vstab.error = String(err);
                setStatus('Error: ' + err, 'error');
                document.getElementById('start').disabled = false;
            }
        }

        async function stopSession() {
            const id = window.vstab.sessionId;
            if (!id) return;
            clearInterval(timer);
            await fetch('/sessions/' + id, { method: 'DELETE' });
            window.vstab.sessionId = null;
            document.getElementById('start').disabled = false;
            document.getElementById('stop').disabled = true;
            document.getElementById('apply').disabled = true;
            setStatus('Stopped', 'waiting');
        }

        async function applyConfig() {
            const id = window.vstab.sessionId;
            const config = {
                smoothing_frames: parseInt(document.getElementById('smoothing').value, 10),
                correction_margin: parseFloat(document.getElementById('margin').value),
            };
            const resp = await fetch('/sessions/' + id + '/config', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify(config),
            });
            if (!resp.ok) setStatus('Config rejected: ' + await resp.text(), 'error');
        }

        function loadFrame(view) {
            const img = document.getElementById(view);
            img.onload = () => { window.vstab.framesLoaded++; };
            img.src = '/sessions/' + window.vstab.sessionId + '/frame.png?view=' + view + '&t=' + Date.now();
        }

        async function poll() {
            const id = window.vstab.sessionId;
            if (!id) return;
            const resp = await fetch('/sessions/' + id + '/stats');
            if (!resp.ok) return;
            const stats = await resp.json();
            window.vstab.stats = stats;

            setStatus('Session ' + id + ': ' + stats.state, stats.state === 'connected' ? 'connected' : 'waiting');
            const rows = Object.entries(stats).map(([k, v]) =>
                '<tr><td>' + k + '</td><td>' + (typeof v === 'number' ? +v.toFixed(2) : v) + '</td></tr>');
            document.getElementById('stats').innerHTML = rows.join('');

            if (stats.frames_sent > 0) loadFrame('raw');
            if (stats.frames_received > 0) loadFrame('stable');
        }
    </script>
</body>
</html>
`
