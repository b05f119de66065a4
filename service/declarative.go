package service

import (
	"fmt"

	"github.com/igor04091968/sing-l2tp/database/model"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// TunnelFile is the declarative form of the tunnel store:
//
//	tunnels:
//	  - name: tunnel1
//	    local_ip: 1.2.3.4
//	    remote_ip: 5.6.7.8
//	    tunnel_id: 10
//	    ...
type TunnelFile struct {
	Tunnels []model.Tunnel `yaml:"tunnels"`
}

// LoadTunnelFile reads and validates a tunnel file.
func LoadTunnelFile(fs afero.Fs, path string) (*TunnelFile, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	return ParseTunnelFile(data)
}

func ParseTunnelFile(data []byte) (*TunnelFile, error) {
	var file TunnelFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse tunnel file: %w", err)
	}

	seen := make(map[string]bool, len(file.Tunnels))
	for i := range file.Tunnels {
		t := &file.Tunnels[i]
		if err := NormalizeTunnel(t); err != nil {
			return nil, fmt.Errorf("tunnel #%d: %w", i+1, err)
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("tunnel '%s' is listed twice", t.Name)
		}
		seen[t.Name] = true
	}
	return &file, nil
}

// NormalizeTunnel fills derived fields and defaults of a tunnel read from
// outside the store, then validates it. A nil port list stays nil: it
// means the input does not manage forwards.
func NormalizeTunnel(t *model.Tunnel) error {
	t.InterfaceName = model.InterfaceNameFor(t.Name)
	if t.InterfaceIP == "" {
		t.InterfaceIP = model.DefaultInterfaceIP
	}
	return t.Validate()
}

// upsertTunnel writes the endpoint fields of in to store, creating the
// tunnel when it is new. The port set and the stopped flag are left alone;
// only the forward controller changes ports.
func upsertTunnel(store TunnelStore, in *model.Tunnel) (*model.Tunnel, string, error) {
	cfg, err := store.Get(in.Name)
	if err != nil {
		return nil, "", err
	}
	verb := "updated"
	if cfg == nil {
		if cfg, err = store.Create(in.Name); err != nil {
			return nil, "", err
		}
		verb = "created"
	}

	cfg.LocalIP = in.LocalIP
	cfg.RemoteIP = in.RemoteIP
	cfg.InterfaceIP = in.InterfaceIP
	cfg.TunnelID = in.TunnelID
	cfg.PeerTunnelID = in.PeerTunnelID
	cfg.SessionID = in.SessionID
	cfg.PeerSessionID = in.PeerSessionID
	cfg.RemoteForwardIP = in.RemoteForwardIP

	if err := store.Save(cfg); err != nil {
		return nil, "", err
	}
	return cfg, verb, nil
}

// ExportTunnels renders every stored tunnel as a tunnel file.
func ExportTunnels(store TunnelStore) ([]byte, error) {
	names, err := store.List()
	if err != nil {
		return nil, err
	}
	file := TunnelFile{Tunnels: []model.Tunnel{}}
	for _, name := range names {
		cfg, err := store.Get(name)
		if err != nil {
			return nil, err
		}
		if cfg != nil {
			file.Tunnels = append(file.Tunnels, *cfg)
		}
	}
	return yaml.Marshal(&file)
}
