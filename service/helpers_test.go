package service

import (
	"errors"
	"slices"
	"sync"

	"github.com/igor04091968/sing-l2tp/database/model"
)

// memStore is a TunnelStore kept in memory.
type memStore struct {
	mu      sync.Mutex
	tunnels map[string]*model.Tunnel
	saves   int
	failing bool
}

func newMemStore(tunnels ...*model.Tunnel) *memStore {
	m := &memStore{tunnels: map[string]*model.Tunnel{}}
	for _, t := range tunnels {
		m.tunnels[t.Name] = t
	}
	return m
}

func (m *memStore) List() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.tunnels {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (m *memStore) Get(name string) (*model.Tunnel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tunnels[name], nil
}

func (m *memStore) Create(name string) (*model.Tunnel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tunnels[name]; ok {
		return nil, errors.New("exists")
	}
	t := model.NewTunnel(name)
	m.tunnels[name] = t
	return t, nil
}

func (m *memStore) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tunnels, name)
	return nil
}

func (m *memStore) Save(cfg *model.Tunnel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("disk full")
	}
	m.saves++
	m.tunnels[cfg.Name] = cfg
	return nil
}
