package server

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>looprec</title>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/@picocss/pico@2/css/pico.min.css">
    <style>
        .rec { color: #d33; font-weight: bold; visibility: hidden; }
        .rec.on { visibility: visible; }
    </style>
</head>
<body>
    <main class="container">
        <h1>looprec</h1>
        <p id="denied" hidden>You must enable audio recording permissions in order to use this app.</p>
        <div id="controls">
            <button id="record" onclick="send('/record')">Record</button>
            <span id="rec" class="rec">● REC <span id="elapsed">00:00</span></span>
            <div role="group">
                <button id="playpause" onclick="send('/playpause')" disabled>Play</button>
                <button id="stop" onclick="send('/stop')" disabled>Stop</button>
            </div>
            <progress id="loading" hidden></progress>
        </div>
    </main>
    <script>
        function render(msg) {
            const c = msg.controls;
            document.getElementById('denied').hidden = !c.permission_denied;
            document.getElementById('controls').hidden = c.permission_denied;
            document.getElementById('record').disabled = !c.record_enabled;
            document.getElementById('rec').classList.toggle('on', c.recording_visible);
            document.getElementById('elapsed').textContent = c.elapsed;
            document.getElementById('playpause').textContent = c.play_pause_label;
            document.getElementById('playpause').disabled = !c.playback_enabled;
            document.getElementById('stop').disabled = !c.playback_enabled;
            document.getElementById('loading').hidden = !c.loading;
        }

        function send(path) {
            fetch(path, { method: 'POST' })
                .then(r => r.json())
                .then(render)
                .catch(err => console.error(path, err));
        }

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
            const ws = new WebSocket(proto + location.host + '/ws');
            ws.onmessage = e => render(JSON.parse(e.data));
            ws.onclose = () => setTimeout(connect, 1000);
        }

        fetch('/status').then(r => r.json()).then(render);
        connect();
    </script>
</body>
</html>`
