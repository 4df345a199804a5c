package http

import (
	"net/http"
)

// frontendHTML is the embedded map client. It renders /api/v1/scene with
// Leaflet and mounts itself as the live viewport over the websocket.
const frontendHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>GeoLayers</title>
    <link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
    <style>
        :root {
            --primary: #2563eb;
            --error: #dc2626;
            --bg: #f8fafc;
            --card: #ffffff;
            --text: #1e293b;
            --text-muted: #64748b;
            --border: #e2e8f0;
            --radius: 8px;
        }

        * { box-sizing: border-box; margin: 0; padding: 0; }

        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            color: var(--text);
            display: flex;
            height: 100vh;
        }

        aside {
            width: 320px;
            background: var(--bg);
            border-right: 1px solid var(--border);
            overflow-y: auto;
            padding: 1rem;
        }

        #map { flex: 1; }

        h1 { font-size: 1.25rem; color: var(--primary); margin-bottom: 0.25rem; }

        .status { font-size: 0.75rem; color: var(--text-muted); margin-bottom: 1rem; }
        .status.online::before { content: "\25CF "; color: #16a34a; }
        .status.offline::before { content: "\25CF "; color: var(--error); }

        .card {
            background: var(--card);
            border-radius: var(--radius);
            border: 1px solid var(--border);
            padding: 0.75rem;
            margin-bottom: 0.75rem;
        }

        .card-title {
            font-size: 0.75rem;
            font-weight: 600;
            color: var(--text-muted);
            text-transform: uppercase;
            letter-spacing: 0.05em;
            margin-bottom: 0.5rem;
        }

        .layer { display: flex; align-items: center; gap: 0.375rem; padding: 0.25rem 0; font-size: 0.875rem; }
        .layer .name { flex: 1; overflow: hidden; text-overflow: ellipsis; white-space: nowrap; }
        .layer .swatch { width: 12px; height: 12px; border-radius: 2px; flex-shrink: 0; }
        .layer input[type=range] { width: 100%; }

        button {
            border: 1px solid var(--border);
            background: var(--card);
            border-radius: 4px;
            padding: 0.125rem 0.375rem;
            cursor: pointer;
            font-size: 0.75rem;
        }
        button:hover { border-color: var(--primary); }

        .controls { display: flex; gap: 0.375rem; }

        input[type=file] { font-size: 0.75rem; width: 100%; margin-bottom: 0.5rem; }

        .message { font-size: 0.75rem; margin-top: 0.5rem; }
        .message.error { color: var(--error); }

        .popup-row { font-size: 0.75rem; }
        .popup-row b { font-weight: 600; }
    </style>
</head>
<body>
    <aside>
        <h1>GeoLayers</h1>
        <div id="status" class="status offline">disconnected</div>

        <div class="card">
            <div class="card-title">Upload</div>
            <form id="upload">
                <input type="file" name="file"
                       accept=".geojson,.json,.zip,.shp,.kml,.kmz,.gpkg,.tif,.tiff,.geotiff" required>
                <button type="submit">Add layer</button>
            </form>
            <div id="upload-message" class="message"></div>
        </div>

        <div class="card">
            <div class="card-title">View</div>
            <div class="controls">
                <button data-zoom="1">Zoom in</button>
                <button data-zoom="-1">Zoom out</button>
                <button id="reset">Reset view</button>
            </div>
        </div>

        <div class="card">
            <div class="card-title">Vector layers</div>
            <div id="vector-layers"></div>
        </div>

        <div class="card">
            <div class="card-title">Raster layers</div>
            <div id="raster-layers"></div>
        </div>
    </aside>
    <div id="map"></div>

    <script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
    <script>
        const api = '/api/v1';
        const pipelineId = 'pipeline-default';
        const map = L.map('map', { zoomControl: false, maxZoom: 18 });
        L.tileLayer('https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png', {
            maxZoom: 18,
            attribution: '&copy; OpenStreetMap contributors'
        }).addTo(map);

        const drawn = L.layerGroup().addTo(map);
        const acknowledged = new Set();
        let socket = null;

        function escapeHtml(s) {
            return String(s).replace(/[&<>"']/g, c => ({
                '&': '&amp;', '<': '&lt;', '>': '&gt;', '"': '&quot;', "'": '&#39;'
            })[c]);
        }

        function send(msg) {
            if (socket && socket.readyState === WebSocket.OPEN) {
                socket.send(JSON.stringify(msg));
            }
        }

        async function request(method, path, body) {
            const opts = { method, headers: {} };
            if (body !== undefined) {
                opts.headers['Content-Type'] = 'application/json';
                opts.body = JSON.stringify(body);
            }
            const res = await fetch(api + path, opts);
            if (!res.ok) {
                const err = await res.json().catch(() => ({}));
                throw new Error(err.message || res.statusText);
            }
            return res.status === 204 ? null : res.json();
        }

        function drawVector(v) {
            const features = v.data.type === 'FeatureCollection' ? v.data.features : [v.data];
            const position = new Map(features.map((f, i) => [f, i]));
            const popups = new Map(v.popups.map(p => [p.index, p.entries]));
            return L.geoJSON(v.data, {
                style: () => v.style,
                pointToLayer: (_, latlng) => L.circleMarker(latlng, v.marker),
                onEachFeature: (feature, layer) => {
                    const entries = popups.get(position.get(feature));
                    if (entries) {
                        layer.bindPopup(entries.map(e =>
                            '<div class="popup-row"><b>' + escapeHtml(e.key) + ':</b> ' +
                            escapeHtml(e.value) + '</div>').join(''));
                    }
                }
            });
        }

        async function render() {
            const scene = await request('GET', '/scene');
            drawn.clearLayers();
            for (const v of scene.vectors) {
                drawVector(v).addTo(drawn);
            }
            for (const r of scene.rasters) {
                L.imageOverlay(r.imageUrl, r.bounds, { opacity: r.opacity, zIndex: r.zIndex }).addTo(drawn);
            }
            for (const v of scene.vectors) {
                if (!acknowledged.has(v.layerId)) {
                    acknowledged.add(v.layerId);
                    send({ type: 'mounted', layerId: v.layerId });
                }
            }
            await renderList();
        }

        async function renderList() {
            const layers = await request('GET', '/layers');

            const vectors = document.getElementById('vector-layers');
            vectors.innerHTML = layers.vector.map(l =>
                '<div class="layer">' +
                '<span class="swatch" style="background:' + escapeHtml(l.color || '#3b82f6') + '"></span>' +
                '<input type="checkbox" data-toggle="vector/' + l.id + '"' + (l.visible ? ' checked' : '') + '>' +
                '<span class="name" title="' + escapeHtml(l.name) + '">' + escapeHtml(l.name) + '</span>' +
                '<button data-zoomto="' + l.id + '">Zoom</button>' +
                (l.id === pipelineId ? '' : '<button data-delete="vector/' + l.id + '">&times;</button>') +
                '</div>').join('') || '<div class="message">none</div>';

            const rasters = document.getElementById('raster-layers');
            rasters.innerHTML = layers.raster.map(l =>
                '<div class="layer">' +
                '<input type="checkbox" data-toggle="raster/' + l.id + '"' + (l.visible ? ' checked' : '') + '>' +
                '<span class="name" title="' + escapeHtml(l.name) + '">' + escapeHtml(l.name) + '</span>' +
                '<button data-delete="raster/' + l.id + '">&times;</button>' +
                '</div>' +
                '<div class="layer"><input type="range" min="0" max="1" step="0.05" value="' + l.opacity +
                '" data-opacity="' + l.id + '"></div>').join('') || '<div class="message">none</div>';
        }

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
            socket = new WebSocket(proto + '//' + location.host + api + '/viewport/ws');
            const status = document.getElementById('status');

            socket.onopen = () => {
                status.className = 'status online';
                status.textContent = 'connected';
                acknowledged.clear();
                reportView();
                render().catch(console.error);
            };
            socket.onclose = () => {
                status.className = 'status offline';
                status.textContent = 'disconnected';
                setTimeout(connect, 2000);
            };
            socket.onmessage = (ev) => {
                const msg = JSON.parse(ev.data);
                if (msg.type === 'command') {
                    applyCommand(msg);
                } else if (msg.type === 'layer') {
                    render().catch(console.error);
                }
            };
        }

        function applyCommand(msg) {
            switch (msg.command) {
            case 'fitBounds':
                if (msg.bounds) {
                    map.fitBounds(msg.bounds, {
                        padding: msg.options.padding,
                        maxZoom: msg.options.maxZoom,
                        animate: msg.options.animate
                    });
                }
                break;
            case 'setView':
                map.setView([msg.center.lat, msg.center.lng], msg.zoom);
                break;
            case 'setZoom':
                map.setZoom(msg.zoom);
                break;
            }
        }

        function reportView() {
            const c = map.getCenter();
            send({ type: 'moveend', center: { lat: c.lat, lng: c.lng }, zoom: map.getZoom() });
        }

        map.on('moveend', reportView);

        document.addEventListener('click', async (ev) => {
            const t = ev.target;
            try {
                if (t.dataset.zoom) {
                    await request('PUT', '/viewport/zoom', { delta: Number(t.dataset.zoom) });
                } else if (t.id === 'reset') {
                    await request('POST', '/viewport/reset');
                } else if (t.dataset.zoomto) {
                    await request('POST', '/layers/vector/' + t.dataset.zoomto + '/zoom');
                } else if (t.dataset.delete) {
                    await request('DELETE', '/layers/' + t.dataset.delete);
                }
            } catch (err) {
                console.error(err);
            }
        });

        document.addEventListener('change', async (ev) => {
            const t = ev.target;
            try {
                if (t.dataset.toggle) {
                    await request('POST', '/layers/' + t.dataset.toggle + '/toggle');
                } else if (t.dataset.opacity) {
                    await request('PUT', '/layers/raster/' + t.dataset.opacity + '/opacity', { opacity: Number(t.value) });
                }
            } catch (err) {
                console.error(err);
            }
        });

        document.getElementById('upload').addEventListener('submit', async (ev) => {
            ev.preventDefault();
            const message = document.getElementById('upload-message');
            message.className = 'message';
            message.textContent = 'Uploading...';
            try {
                const res = await fetch(api + '/layers/upload', { method: 'POST', body: new FormData(ev.target) });
                const body = await res.json();
                if (!res.ok) {
                    throw new Error(body.message || res.statusText);
                }
                message.textContent = 'Added ' + body.layer.name;
                ev.target.reset();
            } catch (err) {
                message.className = 'message error';
                message.textContent = err.message;
            }
        });

        request('GET', '/viewport')
            .then(v => map.setView([v.center.lat, v.center.lng], v.zoom))
            .catch(() => map.setView([4.55, 8.2], 12))
            .finally(connect);
    </script>
</body>
</html>`

// handleFrontend serves the embedded map client.
func (s *Server) handleFrontend(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(frontendHTML))
}
