package sources

const (
	NodesPath       = "/api/nodes"
	TraceroutesPath = "/api/traceroutes"
	EventsPath      = "/api/events"
)
