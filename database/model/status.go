package model

// ForwardUnit is the live view of one forwarded port. It is recomputed on
// every listing and never stored.
type ForwardUnit struct {
	Port    int    `json:"port"`
	Service string `json:"service"`
	Status  string `json:"status"`  // systemctl is-active, "inactive" when the query fails
	Enabled string `json:"enabled"` // systemctl is-enabled, "disabled" when the query fails
	Remote  string `json:"remote"`
}

// TunnelStatus is a snapshot of what the host reports for a tunnel.
type TunnelStatus struct {
	TunnelName    string `json:"tunnel_name"`
	Configured    bool   `json:"configured"`
	LocalIP       string `json:"local_ip"`
	RemoteIP      string `json:"remote_ip"`
	InterfaceName string `json:"interface_name"`
	TunnelExists  bool   `json:"tunnel_exists"`
	SessionExists bool   `json:"session_exists"`
	InterfaceUp   bool   `json:"interface_up"`
	InterfaceIP   string `json:"interface_ip"`
	TunnelInfo    string `json:"tunnel_info,omitempty"`
	SessionInfo   string `json:"session_info,omitempty"`
}
