package tunnel

// URLs are the public hostnames registered for one session.
type URLs struct {
	App    string `json:"app_url"`
	Editor string `json:"editor_url"`
}

// entry is what we persist per session so the ingress file can be rebuilt
// from scratch on every change. The hostname slug is derived from the repo
// name at render time.
type entry struct {
	RepoName   string `json:"repo_name"`
	EditorPort int    `json:"editor_port"`
	DevPort    int    `json:"dev_port"`
}

// cloudflared config.yaml structure. Only the fields we write.
type cloudflaredConfig struct {
	Tunnel          string        `yaml:"tunnel"`
	CredentialsFile string        `yaml:"credentials-file,omitempty"`
	Ingress         []ingressRule `yaml:"ingress"`
}

type ingressRule struct {
	Hostname string `yaml:"hostname,omitempty"`
	Service  string `yaml:"service"`
}
