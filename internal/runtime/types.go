package runtime

// Labels identifying containers and networks owned by the orchestrator.
// One canonical scheme; the fleet marker distinguishes our containers from
// anything else on the host.
const (
	LabelSessionID = "rv.session_id"
	LabelRepo      = "rv.repo"
	LabelManaged   = "rv.managed"
)

// 根据 session id 推导的确定性命名
func ContainerName(sessionID string) string {
	return "rv-agent-" + shortID(sessionID)
}

func NetworkName(sessionID string) string {
	return "rv-net-" + shortID(sessionID)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// internalNetworkPrefixes are network names that belong to the orchestrator
// itself (or to Docker). Sibling discovery skips them so only networks the
// agent joined voluntarily remain.
var internalNetworkPrefixes = []string{"rv-net-", "rv_", "bridge", "host", "none"}

type VolumeBinding struct {
	Source string // named volume or host path
	Target string
	Mode   string // "rw" / "ro"
}

// ContainerSpec describes one orchestrator-launched container.
type ContainerSpec struct {
	Name  string
	Image string
	// Cmd overrides the image entrypoint command. Empty keeps the image
	// default.
	Cmd         []string
	Env         map[string]string
	Volumes     []VolumeBinding
	Ports       map[int]int // container port -> host port
	Network     string
	Labels      map[string]string
	User        string
	MemoryBytes int64
	CPUQuota    float64 // cores
}

type StartedContainer struct {
	ID   string
	Name string
}

// Container states as reported by the engine, plus our sentinels.
const (
	StateRunning  = "running"
	StateExited   = "exited"
	StatePaused   = "paused"
	StateNotFound = "not_found"
	StateUnknown  = "unknown"
)

// Sibling is a container reachable from a managed container because the
// managed container joined its network (e.g. a compose stack the agent
// started itself).
type Sibling struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Service string `json:"service"`
	Status  string `json:"status"`
	Project string `json:"compose_project"`
	Network string `json:"network"`
}

// ManagedContainer is a fleet-listing entry for an orchestrator-owned
// container.
type ManagedContainer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
	Repo      string `json:"repo"`
}

type ExecResult struct {
	ExitCode int
	Output   string
}
