package service

import (
	"fmt"

	"github.com/igor04091968/sing-l2tp/database"
	"github.com/igor04091968/sing-l2tp/database/model"
	"gorm.io/gorm"
)

// TunnelStore persists tunnel intent. Controllers only ever call Save on
// the config they were built with.
type TunnelStore interface {
	List() ([]string, error)
	Get(name string) (*model.Tunnel, error)
	Create(name string) (*model.Tunnel, error)
	Delete(name string) error
	Save(cfg *model.Tunnel) error
}

// StoreService is the gorm-backed TunnelStore.
type StoreService struct {
	db *gorm.DB
}

func NewStoreService(db *gorm.DB) *StoreService {
	if db == nil {
		db = database.GetDB()
	}
	return &StoreService{db: db}
}

// List returns tunnel names in name order.
func (s *StoreService) List() ([]string, error) {
	var names []string
	err := s.db.Model(&model.Tunnel{}).Order("name").Pluck("name", &names).Error
	return names, err
}

// All returns every tunnel in name order.
func (s *StoreService) All() ([]model.Tunnel, error) {
	var tunnels []model.Tunnel
	err := s.db.Order("name").Find(&tunnels).Error
	return tunnels, err
}

// Get returns (nil, nil) when no tunnel has that name.
func (s *StoreService) Get(name string) (*model.Tunnel, error) {
	var cfg model.Tunnel
	err := s.db.Where("name = ?", name).First(&cfg).Error
	if database.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustGet is Get with ErrTunnelNotFound for a missing name.
func (s *StoreService) MustGet(name string) (*model.Tunnel, error) {
	cfg, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s", ErrTunnelNotFound, name)
	}
	return cfg, nil
}

// Create stores a tunnel with defaults. Names must be slug safe and their
// derived interface names must not collide with another tunnel's.
func (s *StoreService) Create(name string) (*model.Tunnel, error) {
	if !model.ValidName(name) {
		return nil, &ValidationError{Token: name, Msg: "tunnel names use a-z, 0-9, '-' and '_' (max 32)"}
	}
	existing, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("tunnel '%s' already exists", name)
	}

	cfg := model.NewTunnel(name)
	var clash int64
	if err := s.db.Model(&model.Tunnel{}).Where("interface_name = ?", cfg.InterfaceName).Count(&clash).Error; err != nil {
		return nil, err
	}
	if clash > 0 {
		return nil, fmt.Errorf("interface name '%s' is already used by another tunnel", cfg.InterfaceName)
	}

	if err := s.db.Create(cfg).Error; err != nil {
		return nil, fmt.Errorf("failed to save tunnel '%s': %w", name, err)
	}
	return cfg, nil
}

func (s *StoreService) Save(cfg *model.Tunnel) error {
	if err := cfg.Validate(); err != nil {
		return &ValidationError{Token: cfg.Name, Msg: err.Error()}
	}
	if cfg.ID == 0 {
		return s.db.Create(cfg).Error
	}
	return s.db.Save(cfg).Error
}

// Delete removes the record permanently; deleting a missing name is not an error.
func (s *StoreService) Delete(name string) error {
	return s.db.Unscoped().Where("name = ?", name).Delete(&model.Tunnel{}).Error
}
