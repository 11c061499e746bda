package mapdoc

const rnliAttribution = `<a href="https://rnli.org/">&copy; RNLI</a> | `

// TileLayer is one raster basemap.
type TileLayer struct {
	Name        string
	URL         string
	Attribution string
	// Show adds the layer to the map on load.
	Show bool
	// Control lists the layer in the layer control so it can be toggled.
	Control bool
}

// DefaultBasemaps returns the six basemaps in display order. Every layer is
// visible on load and independently toggleable.
func DefaultBasemaps() []TileLayer {
	layers := []TileLayer{
		{
			Name:        "ESRI World Imagery",
			URL:         "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
			Attribution: rnliAttribution + `<a href="https://www.esri.com">&copy; ESRI</a>`,
		},
		{
			Name:        "CartoDB Dark Imagery",
			URL:         "https://a.basemaps.cartocdn.com/dark_all/{z}/{x}/{y}.png",
			Attribution: rnliAttribution + `<a href="https://www.carto.com">&copy; Carto</a>`,
		},
		{
			Name:        "Open Street Map",
			URL:         "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
			Attribution: rnliAttribution + `<a href="https://www.openstreetmap.org">&copy; OSM</a>`,
		},
		{
			Name:        "Open Topo Map",
			URL:         "https://tile.opentopomap.org/{z}/{x}/{y}.png",
			Attribution: rnliAttribution + `<a href="https://www.opentopomap.org">&copy; OTM</a>`,
		},
		{
			Name:        "Google Hybrid",
			URL:         "https://mt1.google.com/vt/lyrs=y&x={x}&y={y}&z={z}",
			Attribution: rnliAttribution + `<a href="https://www.google.com">&copy; Google</a>`,
		},
		{
			Name:        "Google Road",
			URL:         "https://mt1.google.com/vt/lyrs=m&x={x}&y={y}&z={z}",
			Attribution: rnliAttribution + `<a href="https://www.google.com">&copy; Google</a>`,
		},
	}
	for i := range layers {
		layers[i].Show = true
		layers[i].Control = true
	}
	return layers
}
