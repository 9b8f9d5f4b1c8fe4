package api

// RemediateRequest is the API-level request to validate and remediate
// the endpoint this server runs on.
type RemediateRequest struct {
	SiteCode        string `json:"site_code"`
	ManagementPoint string `json:"management_point"`
	InstallerPath   string `json:"installer_path"`
	SetupArgs       string `json:"setup_args,omitempty"`
	UninstallFirst  bool   `json:"uninstall_first,omitempty"`
	ForceInstall    bool   `json:"force_install,omitempty"`
	CheckOnly       bool   `json:"check_only,omitempty"`
}

// ErrorResponse is returned for API errors.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Database bool   `json:"database"`
	Uptime   string `json:"uptime"`
}
